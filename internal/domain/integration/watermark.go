package integration

import (
	"fmt"
	"strconv"
	"time"
)

// WatermarkKind describes what a watermark is measured in
type WatermarkKind string

const (
	// WatermarkKindID bounds id-ordered feeds by the highest remote id seen
	WatermarkKindID WatermarkKind = "id"
	// WatermarkKindTimestamp bounds updated-after feeds by the latest remote update time
	WatermarkKindTimestamp WatermarkKind = "timestamp"
)

// IsValid returns true if the kind is known
func (k WatermarkKind) IsValid() bool {
	return k == WatermarkKindID || k == WatermarkKindTimestamp
}

// WatermarkMark is a single position on a remote feed
type WatermarkMark struct {
	ID   int64
	Time time.Time
}

// IsZero returns true if the mark carries no position
func (m WatermarkMark) IsZero() bool {
	return m.ID == 0 && m.Time.IsZero()
}

// MarkOf extracts the feed position of a remote record.
// Ids that are not numeric yield a zero mark for id-ordered feeds.
func MarkOf(kind WatermarkKind, rec *RemoteRecord) WatermarkMark {
	if rec == nil {
		return WatermarkMark{}
	}
	switch kind {
	case WatermarkKindID:
		id, err := strconv.ParseInt(rec.ExternalID, 10, 64)
		if err != nil {
			return WatermarkMark{}
		}
		return WatermarkMark{ID: id}
	case WatermarkKindTimestamp:
		if rec.RemoteUpdatedAt == nil {
			return WatermarkMark{}
		}
		return WatermarkMark{Time: rec.RemoteUpdatedAt.UTC()}
	}
	return WatermarkMark{}
}

// MaxMark returns the component-wise maximum of two marks
func MaxMark(a, b WatermarkMark) WatermarkMark {
	out := a
	if b.ID > out.ID {
		out.ID = b.ID
	}
	if b.Time.After(out.Time) {
		out.Time = b.Time
	}
	return out
}

// Watermark is the per (entity type, account) high-water position of the
// last committed sync. It only moves forward.
type Watermark struct {
	EntityType EntityType
	AccountID  string
	Kind       WatermarkKind
	// HighID is the highest remote id committed (id-ordered feeds)
	HighID int64
	// HighTime is the latest remote update time committed (timestamp feeds)
	HighTime time.Time
	// ResumeCursor is the page cursor of an interrupted full sync
	ResumeCursor string
	// FullSyncCompletedAt is when the last full sync finished
	FullSyncCompletedAt *time.Time
	UpdatedAt           time.Time
}

// NewWatermark creates an empty watermark for the entity type
func NewWatermark(entityType EntityType, accountID string) *Watermark {
	return &Watermark{
		EntityType: entityType,
		AccountID:  accountID,
		Kind:       entityType.WatermarkKind(),
		UpdatedAt:  time.Now(),
	}
}

// IsZero returns true if nothing has been committed yet
func (w *Watermark) IsZero() bool {
	return w == nil || (w.HighID == 0 && w.HighTime.IsZero())
}

// Mark returns the current position
func (w *Watermark) Mark() WatermarkMark {
	if w == nil {
		return WatermarkMark{}
	}
	return WatermarkMark{ID: w.HighID, Time: w.HighTime}
}

// Covers returns true if the record is at or below the watermark, meaning an
// incremental sync has already seen it
func (w *Watermark) Covers(rec *RemoteRecord) bool {
	if w.IsZero() || rec == nil {
		return false
	}
	mark := MarkOf(w.Kind, rec)
	if mark.IsZero() {
		return false
	}
	switch w.Kind {
	case WatermarkKindID:
		return mark.ID <= w.HighID
	case WatermarkKindTimestamp:
		return !mark.Time.After(w.HighTime)
	}
	return false
}

// Advance moves the watermark forward to mark. Positions lower than the
// current one are ignored. Returns true if the watermark moved.
func (w *Watermark) Advance(mark WatermarkMark) bool {
	moved := false
	switch w.Kind {
	case WatermarkKindID:
		if mark.ID > w.HighID {
			w.HighID = mark.ID
			moved = true
		}
	case WatermarkKindTimestamp:
		if mark.Time.After(w.HighTime) {
			w.HighTime = mark.Time.UTC()
			moved = true
		}
	}
	if moved {
		w.UpdatedAt = time.Now()
	}
	return moved
}

// Checkpoint records the cursor of the next page of an in-progress full sync
func (w *Watermark) Checkpoint(cursor string) {
	w.ResumeCursor = cursor
	w.UpdatedAt = time.Now()
}

// CompleteFullSync clears the resume cursor and stamps completion
func (w *Watermark) CompleteFullSync(at time.Time) {
	w.ResumeCursor = ""
	t := at
	w.FullSyncCompletedAt = &t
	w.UpdatedAt = time.Now()
}

// String returns a readable position
func (w *Watermark) String() string {
	if w == nil {
		return "<none>"
	}
	if w.Kind == WatermarkKindID {
		return fmt.Sprintf("%s/%s id>%d", w.EntityType, w.AccountID, w.HighID)
	}
	return fmt.Sprintf("%s/%s updated>%s", w.EntityType, w.AccountID, w.HighTime.Format(time.RFC3339))
}
