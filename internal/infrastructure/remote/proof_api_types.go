package remote

import "encoding/json"

// GraphQL documents of the proofing API

const proofFields = `id name status version dueDate approverEmail updatedAt order { id } versions { id }`

const proofListQuery = `query Proofs($first: Int!, $after: String) {
  proofs(first: $first, after: $after, orderBy: {field: UPDATED_AT, direction: DESC}) {
    pageInfo { hasNextPage endCursor }
    nodes { ` + proofFields + ` }
  }
}`

const proofGetQuery = `query Proof($id: ID!) {
  proof(id: $id) { ` + proofFields + ` }
}`

const proofStatusMutation = `mutation UpdateProofStatus($id: ID!, $status: ProofStatus!) {
  updateProofStatus(input: {id: $id, status: $status}) {
    proof { ` + proofFields + ` }
    errors { field message }
  }
}`

// GraphQLRequest is a GraphQL request body
type GraphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

// GraphQLError is one entry of a GraphQL errors array
type GraphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// GraphQLResponse is a GraphQL response envelope
type GraphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// ProofAPIRef is a reference to another object
type ProofAPIRef struct {
	ID string `json:"id"`
}

// ProofAPIProof is a proof node
type ProofAPIProof struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Status        string        `json:"status"`
	Version       int           `json:"version"`
	DueDate       string        `json:"dueDate"`
	ApproverEmail string        `json:"approverEmail"`
	UpdatedAt     string        `json:"updatedAt"`
	Order         *ProofAPIRef  `json:"order"`
	Versions      []ProofAPIRef `json:"versions"`
}

// ProofAPIPageInfo is the relay page info block
type ProofAPIPageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type proofListData struct {
	Proofs struct {
		PageInfo ProofAPIPageInfo `json:"pageInfo"`
		Nodes    []ProofAPIProof  `json:"nodes"`
	} `json:"proofs"`
}

type proofGetData struct {
	Proof *ProofAPIProof `json:"proof"`
}

type proofMutationData struct {
	UpdateProofStatus struct {
		Proof  *ProofAPIProof `json:"proof"`
		Errors []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"updateProofStatus"`
}

// ProofAPIWebhook is the envelope of proofing webhook deliveries
type ProofAPIWebhook struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	WorkspaceID string         `json:"workspaceId"`
	CreatedAt   string         `json:"createdAt"`
	Proof       *ProofAPIProof `json:"proof"`
}
