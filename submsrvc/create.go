package submsrvc

import (
	"context"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/programme-lv/anytime/logger"
	"github.com/programme-lv/anytime/submstore"
)

const (
	minNameLen   = 2
	maxNameLen   = 100
	maxEmailLen  = 320
	minAnswerLen = 5
	maxAnswerLen = 10000
)

type CreateSubmParams struct {
	Name   string
	Email  string
	Answer string
}

// Validate normalizes the params in place: name and answer are trimmed,
// the email is trimmed and lowercased.
func (p *CreateSubmParams) Validate() error {
	p.Name = strings.TrimSpace(p.Name)
	if n := utf8.RuneCountInString(p.Name); n < minNameLen || n > maxNameLen {
		return ErrNameInvalid()
	}

	email := strings.TrimSpace(p.Email)
	if len(email) > maxEmailLen {
		return ErrEmailInvalid()
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrEmailInvalid().SetDebug(err)
	}
	p.Email = strings.ToLower(addr.Address)

	p.Answer = strings.TrimSpace(p.Answer)
	if n := utf8.RuneCountInString(p.Answer); n < minAnswerLen || n > maxAnswerLen {
		return ErrAnswerInvalid()
	}
	return nil
}

// CreateSubm validates and stores one submission. A failed write is
// reported to the caller and never retried on another backend.
func (s *SubmSrvc) CreateSubm(ctx context.Context, params CreateSubmParams) (*submstore.Submission, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	h, err := s.handle()
	if err != nil {
		return nil, err
	}
	ctx = logger.WithBackend(ctx, h.Kind().String())

	start := time.Now()
	subm, err := h.Store().Create(ctx, submstore.NewSubmission{
		Name:   params.Name,
		Email:  params.Email,
		Answer: params.Answer,
	})
	observe(h, "create", start, err)
	if err != nil {
		logger.FromContext(ctx).Error("failed to store submission", "error", err)
		return nil, storageErr(err)
	}

	logger.FromContext(ctx).Info("submission stored", "submission_id", subm.ID)
	return &subm, nil
}
