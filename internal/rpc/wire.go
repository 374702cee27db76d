package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/moodengine/internal/compute"
	"github.com/danielpatrickdp/moodengine/internal/conflict"
	"github.com/danielpatrickdp/moodengine/internal/logging"
	"github.com/danielpatrickdp/moodengine/internal/mood"
	"github.com/danielpatrickdp/moodengine/internal/pipeline"
	"github.com/danielpatrickdp/moodengine/internal/recovery"
)

// #region requests
// UserRequest names a user. Used by GetState and DeleteUser.
type UserRequest struct {
	UserID string `json:"user_id"`
}

// TurnRequest is the ProcessTurn payload.
type TurnRequest struct {
	UserID            string              `json:"user_id"`
	Timestamp         *time.Time          `json:"timestamp,omitempty"`
	LifeEvents        []compute.LifeEvent `json:"life_events,omitempty"`
	Tones             []string            `json:"tones,omitempty"`
	Chapter           any                 `json:"chapter,omitempty"`
	RelationshipScore any                 `json:"relationship_score,omitempty"`
	IgnoredMessages   *int                `json:"ignored_messages,omitempty"`
	AttachmentStyle   string              `json:"attachment_style,omitempty"`
	Positive          bool                `json:"positive,omitempty"`
	Approach          string              `json:"approach,omitempty"`
	Intensity         *float64            `json:"intensity,omitempty"` // absent means 1
}

// HistoryRequest is the History payload. Zero days or limit means unbounded.
type HistoryRequest struct {
	UserID       string `json:"user_id"`
	Days         int    `json:"days,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	ConflictOnly bool   `json:"conflict_only,omitempty"`
}

// DecayRequest is the Decay payload. No user ids sweeps every user in conflict.
type DecayRequest struct {
	UserIDs []string `json:"user_ids,omitempty"`
}

// #endregion requests

// #region replies
// StateReply is the GetState result. Estimates maps each approach to the
// projected time to reach none, or "never".
type StateReply struct {
	State     mood.EmotionalState `json:"state"`
	Estimates map[string]string   `json:"estimated_recovery,omitempty"`
}

// DecisionView is a conflict.Decision on the wire.
type DecisionView struct {
	Should bool   `json:"should"`
	Target string `json:"target,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// EventView is a journal event on the wire.
type EventView struct {
	Kind     string  `json:"kind"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	Progress float64 `json:"progress"`
	Reason   string  `json:"reason,omitempty"`
}

// TurnReply is the ProcessTurn result.
type TurnReply struct {
	State        mood.EmotionalState `json:"state"`
	Escalation   DecisionView        `json:"escalation"`
	DeEscalation DecisionView        `json:"de_escalation"`
	Recovery     *recovery.Result    `json:"recovery,omitempty"`
	Decay        recovery.Result     `json:"decay"`
	Events       []EventView         `json:"events,omitempty"`
}

// HistoryReply is the History result, newest first.
type HistoryReply struct {
	States []mood.EmotionalState `json:"states"`
}

// DecayView is one user's sweep outcome.
type DecayView struct {
	UserID string          `json:"user_id"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Saved  bool            `json:"saved"`
	Result recovery.Result `json:"result"`
}

// DecayReply is the Decay result.
type DecayReply struct {
	Outcomes []DecayView `json:"outcomes"`
}

// DeleteReply is the DeleteUser result.
type DeleteReply struct {
	Deleted int `json:"deleted"`
}

// #endregion replies

// #region conversion
func (r TurnRequest) toInput() (pipeline.TurnInput, error) {
	in := pipeline.TurnInput{
		UserID:            r.UserID,
		LifeEvents:        r.LifeEvents,
		Chapter:           r.Chapter,
		RelationshipScore: r.RelationshipScore,
		IgnoredMessages:   r.IgnoredMessages,
		Positive:          r.Positive,
		Intensity:         r.Intensity,
	}
	if r.Timestamp != nil {
		in.Timestamp = r.Timestamp.UTC()
	}
	var err error
	if in.Tones, err = compute.ParseTones(r.Tones); err != nil {
		return pipeline.TurnInput{}, err
	}
	if in.Attachment, err = conflict.ParseAttachmentStyle(r.AttachmentStyle); err != nil {
		return pipeline.TurnInput{}, err
	}
	if r.Approach != "" {
		a, err := recovery.ParseApproach(r.Approach)
		if err != nil {
			return pipeline.TurnInput{}, err
		}
		in.Approach = a
	}
	return in, nil
}

func decisionView(d conflict.Decision) DecisionView {
	return DecisionView{Should: d.Should, Target: string(d.Target), Reason: d.Reason}
}

func eventViews(events []logging.Event) []EventView {
	out := make([]EventView, 0, len(events))
	for _, e := range events {
		out = append(out, EventView{
			Kind:     string(e.Kind),
			From:     string(e.From),
			To:       string(e.To),
			Progress: e.Progress,
			Reason:   e.Reason,
		})
	}
	return out
}

func turnReply(o pipeline.Outcome) TurnReply {
	return TurnReply{
		State:        o.State,
		Escalation:   decisionView(o.Escalation),
		DeEscalation: decisionView(o.DeEscalation),
		Recovery:     o.Recovery,
		Decay:        o.Decay,
		Events:       eventViews(o.Events),
	}
}

// decode reads a Struct into v through its JSON form.
func decode(in *structpb.Struct, v any) error {
	b, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// encode writes v into a Struct through its JSON form.
func encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal reply: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return out, nil
}

// #endregion conversion
