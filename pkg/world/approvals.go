package world

import "context"

// OptionRequest asks a human to pick one option out of several, e.g. before a
// sensitive tool runs.
type OptionRequest struct {
	Title           string            `json:"title"`
	Message         string            `json:"message"`
	ChatID          string            `json:"chatId,omitempty"`
	DefaultOptionID string            `json:"defaultOptionId"`
	Options         []Option          `json:"options"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Option is one selectable choice.
type Option struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

// OptionResponse carries the chosen option.
type OptionResponse struct {
	OptionID string `json:"optionId"`
}

// Approver is the human-in-the-loop approval channel. Implementations may
// block until a human answers.
type Approver interface {
	RequestWorldOption(ctx context.Context, worldID string, req OptionRequest) (OptionResponse, error)
}

// AutoApprover answers every request with its default option. Used when no
// interactive approval channel is wired.
type AutoApprover struct{}

var _ Approver = AutoApprover{}

func (AutoApprover) RequestWorldOption(_ context.Context, _ string, req OptionRequest) (OptionResponse, error) {
	return OptionResponse{OptionID: req.DefaultOptionID}, nil
}
