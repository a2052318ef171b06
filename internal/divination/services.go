package divination

import (
	"context"
	"errors"

	"github.com/ankek/unmeiori/internal/report"
)

// ErrEmptyInput is returned when the request lacks the fields the service needs
var ErrEmptyInput = errors.New("missing input")

// Calendar computes natal stars and favorable directions
type Calendar struct {
	*client
}

// NewCalendar creates the calendar service client
func NewCalendar(opts Options) *Calendar {
	return &Calendar{client: newClient("kyusei", opts)}
}

type calendarRequest struct {
	BirthDate string `json:"birthDate"`
}

// Compute posts the birth date to /kyusei/calculate
func (c *Calendar) Compute(ctx context.Context, birthDate string) (*report.CalendarResult, report.Directions, error) {
	if birthDate == "" {
		return nil, nil, ErrEmptyInput
	}
	raw, err := c.postJSON(ctx, "/kyusei/calculate", calendarRequest{BirthDate: birthDate})
	if err != nil {
		return nil, nil, err
	}
	return report.DecodeCalendar(raw)
}

// Names computes the stroke-count analysis of a full name
type Names struct {
	*client
}

// NewNames creates the name analysis service client
func NewNames(opts Options) *Names {
	return &Names{client: newClient("seimei", opts)}
}

type nameRequest struct {
	Sei     string      `json:"sei"`
	Mei     string      `json:"mei"`
	Options nameOptions `json:"options"`
}

type nameOptions struct {
	IncludeDetail bool `json:"includeDetail"`
}

// Compute posts surname and given name to /seimei/analyze with detail enabled
func (n *Names) Compute(ctx context.Context, surname, givenName string) (*report.NameAnalysisResult, error) {
	if surname == "" && givenName == "" {
		return nil, ErrEmptyInput
	}
	raw, err := n.postJSON(ctx, "/seimei/analyze", nameRequest{
		Sei:     surname,
		Mei:     givenName,
		Options: nameOptions{IncludeDetail: true},
	})
	if err != nil {
		return nil, err
	}
	return report.DecodeNameAnalysis(raw)
}
