package admincli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/services"
)

var ErrPasswordMismatch = errors.New("passwords do not match")

// Bootstrapper is satisfied by *services.AccountService.
type Bootstrapper interface {
	BootstrapAdmin(ctx context.Context, req services.RegisterRequest) (int64, error)
}

// PromptAdmin collects username, email, names and a twice-typed password.
func PromptAdmin(reader *bufio.Reader, w io.Writer) (services.RegisterRequest, error) {
	var req services.RegisterRequest
	var err error

	fields := []struct {
		prompt string
		dst    *string
	}{
		{"Username", &req.Username},
		{"Email", &req.Email},
		{"First name (optional)", &req.Profile.FirstName},
		{"Last name (optional)", &req.Profile.LastName},
	}
	for _, f := range fields {
		if *f.dst, err = GetSimpleText(reader, f.prompt, w); err != nil {
			return services.RegisterRequest{}, err
		}
	}

	pw, err := GetPassword(w, "Password")
	if err != nil {
		return services.RegisterRequest{}, err
	}
	defer common.WipeByteArray(pw)

	confirm, err := GetPassword(w, "Repeat password")
	if err != nil {
		return services.RegisterRequest{}, err
	}
	defer common.WipeByteArray(confirm)

	if !bytes.Equal(pw, confirm) {
		return services.RegisterRequest{}, ErrPasswordMismatch
	}
	req.Password = string(pw)
	req.UserAgent = "createadmin"
	return req, nil
}

// Run prompts for the admin details and creates the account.
func Run(ctx context.Context, b Bootstrapper, reader *bufio.Reader, w io.Writer) error {
	req, err := PromptAdmin(reader, w)
	if err != nil {
		return err
	}

	id, err := b.BootstrapAdmin(ctx, req)
	if err != nil {
		return fmt.Errorf("create admin: %w", err)
	}

	fmt.Fprintf(w, "Admin account %q created (id %d)\n", req.Username, id)
	return nil
}
