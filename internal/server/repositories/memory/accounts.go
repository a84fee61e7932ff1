package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
)

type accountRepo struct {
	tx *Tx
}

func copyAccount(a models.Account) *models.Account {
	if a.LastLoginAt != nil {
		t := *a.LastLoginAt
		a.LastLoginAt = &t
	}
	return &a
}

// conflict mirrors the unique indexes on lower(username) and lower(email),
// ignoring the row with id skip.
func (r *accountRepo) conflict(username, email string, skip int64) string {
	field := ""
	for id, a := range r.tx.st.accounts {
		if id == skip {
			continue
		}
		if strings.EqualFold(a.Username, username) {
			return "username"
		}
		if strings.EqualFold(a.Email, email) {
			field = "email"
		}
	}
	return field
}

func (r *accountRepo) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	if field := r.conflict(a.Username, a.Email, 0); field != "" {
		return nil, &common.DuplicateError{Field: field}
	}

	st := r.tx.st
	st.nextAccountID++
	now := r.tx.now()
	a.ID = st.nextAccountID
	a.CreatedAt = now
	a.UpdatedAt = now
	st.accounts[a.ID] = *copyAccount(*a)
	return a, nil
}

func (r *accountRepo) FindConflict(_ context.Context, username, email string) (string, error) {
	return r.conflict(username, email, 0), nil
}

func (r *accountRepo) GetByID(_ context.Context, id int64) (*models.Account, error) {
	a, ok := r.tx.st.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyAccount(a), nil
}

// GetByIDForUpdate needs no extra locking: the store runs one transaction at
// a time.
func (r *accountRepo) GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	return r.GetByID(ctx, id)
}

func (r *accountRepo) GetActiveByEmail(ctx context.Context, email string) (*models.Account, error) {
	a, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !a.Active {
		return nil, common.ErrorNotFound
	}
	return a, nil
}

func (r *accountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	for _, a := range r.tx.st.accounts {
		if strings.EqualFold(a.Email, email) {
			return copyAccount(a), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *accountRepo) List(context.Context) ([]*models.Account, error) {
	list := make([]*models.Account, 0, len(r.tx.st.accounts))
	for _, a := range r.tx.st.accounts {
		list = append(list, copyAccount(a))
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

func (r *accountRepo) UpdateRole(_ context.Context, id int64, role models.Role, at time.Time) (bool, error) {
	a, ok := r.tx.st.accounts[id]
	if !ok || (a.Role == models.RoleAdmin && role != models.RoleAdmin) {
		return false, nil
	}
	a.Role = role
	a.UpdatedAt = at
	r.tx.st.accounts[id] = a
	return true, nil
}

func (r *accountRepo) update(id int64, fn func(a *models.Account)) error {
	a, ok := r.tx.st.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(&a)
	r.tx.st.accounts[id] = a
	return nil
}

func (r *accountRepo) UpdatePassword(_ context.Context, id int64, hash string, at time.Time) error {
	return r.update(id, func(a *models.Account) {
		a.PasswordHash = hash
		a.UpdatedAt = at
	})
}

func (r *accountRepo) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	return r.update(id, func(a *models.Account) {
		t := at
		a.LastLoginAt = &t
	})
}

func (r *accountRepo) Anonymize(_ context.Context, id int64, anon models.Anonymized, at time.Time) error {
	if _, ok := r.tx.st.accounts[id]; !ok {
		return common.ErrorNotFound
	}
	if field := r.conflict(anon.Username, anon.Email, id); field != "" {
		return &common.DuplicateError{Field: field}
	}
	return r.update(id, func(a *models.Account) {
		a.Username = anon.Username
		a.Email = anon.Email
		a.Profile = models.Profile{FirstName: anon.FirstName, LastName: anon.LastName}
		a.Active = false
		a.UpdatedAt = at
	})
}

// Delete applies the same cascade as the schema: sessions go away and audit
// records lose their actor.
func (r *accountRepo) Delete(_ context.Context, id int64) (bool, error) {
	st := r.tx.st
	a, ok := st.accounts[id]
	if !ok || a.Role == models.RoleAdmin {
		return false, nil
	}
	delete(st.accounts, id)

	for token, s := range st.sessions {
		if s.AccountID == id {
			delete(st.sessions, token)
		}
	}
	for i := range st.audit {
		if st.audit[i].ActorID != nil && *st.audit[i].ActorID == id {
			st.audit[i].ActorID = nil
		}
	}
	return true, nil
}
