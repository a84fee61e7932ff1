package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/dbx"
	"github.com/dmitrijs2005/gatekeeper/internal/logging"
	"github.com/dmitrijs2005/gatekeeper/internal/server/auth"
	"github.com/dmitrijs2005/gatekeeper/internal/server/credentials"
	"github.com/dmitrijs2005/gatekeeper/internal/server/models"
	"github.com/dmitrijs2005/gatekeeper/internal/server/repositories/repomanager"
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// errBadCredentials is returned for unknown emails, inactive accounts and
// wrong passwords alike.
var errBadCredentials = fmt.Errorf("%w: invalid email or password", common.ErrAuth)

var errWrongCurrentPassword = fmt.Errorf("%w: current password is incorrect", common.ErrAuth)

// AccountService implements the account lifecycle: registration, login,
// logout and password management.
type AccountService struct {
	base
	hasher   *credentials.Hasher
	tokens   *auth.TokenService
	sessions *SessionRegistry
	audit    *AuditLog
}

func NewAccountService(t dbx.Transactor, m repomanager.RepositoryManager, hasher *credentials.Hasher,
	tokens *auth.TokenService, sessions *SessionRegistry, audit *AuditLog, logger logging.Logger) *AccountService {
	return &AccountService{
		base:     newBase(t, m, logger, "accounts"),
		hasher:   hasher,
		tokens:   tokens,
		sessions: sessions,
		audit:    audit,
	}
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", common.ErrValidation, msg)
}

func validatePassword(password string) error {
	if len([]rune(password)) < minPasswordLength {
		return validationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > credentials.MaxPasswordBytes {
		return validationError(fmt.Sprintf("password must be at most %d bytes", credentials.MaxPasswordBytes))
	}
	return nil
}

func validateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return validationError("email address is invalid")
	}
	return nil
}

func normalizeRegistration(req RegisterRequest) (RegisterRequest, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	if req.Username == "" {
		return req, validationError("username is required")
	}
	if err := validateEmail(req.Email); err != nil {
		return req, err
	}
	if models.IsReservedIdentity(req.Username, req.Email) {
		return req, validationError("username or email is reserved for anonymized accounts")
	}
	if err := validatePassword(req.Password); err != nil {
		return req, err
	}
	return req, nil
}

// Register creates a member account and returns its id.
func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (int64, error) {
	return s.create(ctx, "register", req, models.RoleMember, models.ActionRegister)
}

// BootstrapAdmin creates an admin account. It is meant for operators
// provisioning a fresh installation.
func (s *AccountService) BootstrapAdmin(ctx context.Context, req RegisterRequest) (int64, error) {
	return s.create(ctx, "bootstrap admin", req, models.RoleAdmin, models.ActionAdminBootstrap)
}

func (s *AccountService) create(ctx context.Context, op string, req RegisterRequest, role models.Role, action string) (int64, error) {
	req, err := normalizeRegistration(req)
	if err != nil {
		return 0, err
	}

	digest, err := s.hashPassword(ctx, op, req.Password)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.withTx(ctx, op, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		field, err := repo.FindConflict(ctx, req.Username, req.Email)
		if err != nil {
			return err
		}
		if field != "" {
			return &common.DuplicateError{Field: field}
		}

		now := s.now()
		account, err := repo.Create(ctx, &models.Account{
			Username:          req.Username,
			Email:             req.Email,
			PasswordHash:      digest,
			Role:              role,
			Active:            true,
			EmailVerified:     role == models.RoleAdmin,
			Profile:           req.Profile,
			ConsentGivenAt:    now,
			PrivacyAcceptedAt: now,
		})
		if err != nil {
			return err
		}

		id = account.ID
		return s.audit.Append(ctx, tx, newRecord(id, action, id, nil,
			map[string]any{"username": account.Username, "email": account.Email, "role": string(role)},
			req.IP, req.UserAgent))
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info(ctx, "account created", "account_id", id, "role", role)
	return id, nil
}

// Authenticate checks the password of the active account with the given
// email and, on success, opens a session and issues a bearer token.
func (s *AccountService) Authenticate(ctx context.Context, req AuthenticateRequest) (*AuthResult, error) {
	email := strings.TrimSpace(req.Email)

	var account *models.Account
	err := s.withTx(ctx, "authenticate", func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		account, err = s.repomanager.Accounts(tx).GetActiveByEmail(ctx, email)
		return err
	})
	if errors.Is(err, common.ErrorNotFound) {
		s.hasher.Dummy(req.Password)
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}

	if !s.hasher.Verify(req.Password, account.PasswordHash) {
		// committed on its own: the login itself fails
		err := s.withTx(ctx, "record failed login", func(ctx context.Context, tx dbx.DBTX) error {
			return s.audit.Append(ctx, tx, newRecord(account.ID, models.ActionLoginFailed, account.ID,
				nil, map[string]any{"email": email}, req.IP, req.UserAgent))
		})
		if err != nil {
			return nil, err
		}
		s.logger.Warn(ctx, "login failed", "account_id", account.ID, "ip", req.IP)
		return nil, errBadCredentials
	}

	var result *AuthResult
	err = s.withTx(ctx, "authenticate", func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Accounts(tx)

		// the account may have changed since the password check
		current, err := repo.GetByID(ctx, account.ID)
		if err != nil {
			return err
		}
		if !current.Active {
			return errBadCredentials
		}

		now := s.now()
		if err := repo.UpdateLastLogin(ctx, current.ID, now); err != nil {
			return err
		}
		current.LastLoginAt = &now

		session, err := s.sessions.Create(ctx, tx, current.ID, req.IP, req.UserAgent)
		if err != nil {
			return err
		}

		bearer, err := s.tokens.Issue(current.ID, current.Username, current.Role)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}

		err = s.audit.Append(ctx, tx, newRecord(current.ID, models.ActionLoginSuccess, current.ID,
			nil, map[string]any{"session_id": session.ID}, req.IP, req.UserAgent))
		if err != nil {
			return err
		}

		result = &AuthResult{
			Account:      current.View(),
			SessionToken: session.Token,
			BearerToken:  bearer,
			ExpiresAt:    session.ExpiresAt,
		}
		return nil
	})
	if errors.Is(err, common.ErrorNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "login succeeded", "account_id", account.ID)
	return result, nil
}

// VerifyToken checks a bearer token's signature and expiry.
func (s *AccountService) VerifyToken(token string) (*auth.Claims, error) {
	return s.tokens.Verify(token)
}

// Logout revokes the session. Bearer tokens stay valid until they expire.
func (s *AccountService) Logout(ctx context.Context, sessionToken string) error {
	return s.sessions.Revoke(ctx, sessionToken)
}

// ChangePassword replaces the password of an active account after checking
// the current one.
func (s *AccountService) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}
	digest, err := s.hashPassword(ctx, "change password", req.NewPassword)
	if err != nil {
		return err
	}

	// the check and the write share one row lock
	err = s.withTx(ctx, "change password", func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.repomanager.Accounts(tx).GetByIDForUpdate(ctx, req.AccountID)
		if err != nil {
			return err
		}
		if !account.Active || !s.hasher.Verify(req.CurrentPassword, account.PasswordHash) {
			return errWrongCurrentPassword
		}
		return s.writePassword(ctx, tx, account.ID, digest, models.ActionPasswordChanged, req.IP, req.UserAgent)
	})
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "password updated", "account_id", req.AccountID, "action", models.ActionPasswordChanged)
	return nil
}

// ResetPassword sets a new password for the account with the given email
// without asking for the current one.
func (s *AccountService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := validatePassword(req.NewPassword); err != nil {
		return err
	}
	digest, err := s.hashPassword(ctx, "reset password", req.NewPassword)
	if err != nil {
		return err
	}

	var id int64
	err = s.withTx(ctx, "reset password", func(ctx context.Context, tx dbx.DBTX) error {
		account, err := s.repomanager.Accounts(tx).GetByEmail(ctx, strings.TrimSpace(req.Email))
		if err != nil {
			return err
		}
		id = account.ID
		return s.writePassword(ctx, tx, id, digest, models.ActionPasswordReset, req.IP, req.UserAgent)
	})
	if errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("no account with this email: %w", common.ErrorNotFound)
	}
	if err != nil {
		return err
	}

	s.logger.Info(ctx, "password updated", "account_id", id, "action", models.ActionPasswordReset)
	return nil
}

// hashPassword runs bcrypt outside any transaction so no row lock is held
// for its duration.
func (s *AccountService) hashPassword(ctx context.Context, op, password string) (string, error) {
	digest, err := s.hasher.Hash(password)
	if err != nil {
		return "", s.fail(ctx, op, fmt.Errorf("hash password: %w", err))
	}
	return digest, nil
}

func (s *AccountService) writePassword(ctx context.Context, tx dbx.DBTX, id int64, digest, action, ip, userAgent string) error {
	if err := s.repomanager.Accounts(tx).UpdatePassword(ctx, id, digest, s.now()); err != nil {
		return err
	}
	return s.audit.Append(ctx, tx, newRecord(id, action, id, nil, nil, ip, userAgent))
}

func (s *AccountService) GetAccount(ctx context.Context, id int64) (*models.AccountView, error) {
	var view models.AccountView
	err := s.withTx(ctx, "get account", func(ctx context.Context, tx dbx.DBTX) error {
		a, err := s.repomanager.Accounts(tx).GetByID(ctx, id)
		if err != nil {
			return err
		}
		view = a.View()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}

// EmailAvailable reports whether no account uses email, ignoring case.
func (s *AccountService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if err := validateEmail(email); err != nil {
		return false, err
	}

	available := false
	err := s.withTx(ctx, "check email", func(ctx context.Context, tx dbx.DBTX) error {
		_, err := s.repomanager.Accounts(tx).GetByEmail(ctx, email)
		if errors.Is(err, common.ErrorNotFound) {
			available = true
			return nil
		}
		return err
	})
	if err != nil {
		return false, err
	}
	return available, nil
}
