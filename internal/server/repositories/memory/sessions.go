package memory

import (
	"context"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type sessionRepo struct {
	tx *Tx
}

func (r *sessionRepo) Create(_ context.Context, s *models.Session) (*models.Session, error) {
	st := r.tx.st
	if _, ok := st.accounts[s.AccountID]; !ok {
		return nil, errForeignKey
	}
	if _, ok := st.sessions[s.Token]; ok {
		return nil, &common.DuplicateError{Field: "token"}
	}

	st.nextSessionID++
	s.ID = st.nextSessionID
	s.CreatedAt = r.tx.now()
	s.Active = true
	st.sessions[s.Token] = *s
	return s, nil
}

func (r *sessionRepo) Find(_ context.Context, token string) (*models.Session, error) {
	s, ok := r.tx.st.sessions[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

func (r *sessionRepo) Revoke(_ context.Context, token string) error {
	s, ok := r.tx.st.sessions[token]
	if !ok {
		return nil
	}
	s.Active = false
	r.tx.st.sessions[token] = s
	return nil
}
