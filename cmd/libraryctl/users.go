package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/angelmondragon/libraryhub-backend/internal/auth"
	"github.com/angelmondragon/libraryhub-backend/internal/holds"
	"github.com/angelmondragon/libraryhub-backend/internal/loans"
	"github.com/angelmondragon/libraryhub-backend/internal/users"
	"github.com/angelmondragon/libraryhub-backend/pkg/storage/local"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var errNoSessions = errors.New("sessions are not available from libraryctl")

// offlineSessions satisfies the auth service for account creation, which
// never opens a session.
type offlineSessions struct{}

func (offlineSessions) Open(context.Context, uuid.UUID) (string, error) { return "", errNoSessions }
func (offlineSessions) Revoke(context.Context, string) error { return errNoSessions }

func newCreateAdminCmd() *cobra.Command {
	var req auth.CreateAdminRequest
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account; the password is read from the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			confirm, err := readPassword(cmd, "Confirm password: ")
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}
			req.Password = password

			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				svc, err := auth.NewService(auth.ServiceParams{
					UserRepo:       users.NewRepository(e.db.DB()),
					SessionManager: offlineSessions{},
					JWTConfig:      e.cfg.JWT,
					PasswordConfig: e.cfg.Password,
					AdminCode:      e.cfg.Library.AdminCode,
					Logger:         e.logg,
				})
				if err != nil {
					return err
				}
				user, err := svc.CreateAdmin(ctx, req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", user.MatricNo, user.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "full name")
	cmd.Flags().StringVar(&req.MatricNo, "matric-no", "", "login identifier")
	cmd.Flags().StringVar(&req.Department, "department", "Library", "department")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("matric-no")
	return cmd
}

func newPromoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "promote <matric-no>",
		Short: "Grant the admin role to an existing account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEnv(cmd.Context(), func(ctx context.Context, e *env) error {
				store, err := local.New(e.cfg.Storage.LocalDir, e.cfg.Storage.PublicBaseURL)
				if err != nil {
					return err
				}
				conn := e.db.DB()
				svc, err := users.NewService(users.ServiceParams{
					Tx:       e.db,
					Repo:     users.NewRepository(conn),
					LoanRepo: loans.NewRepository(conn),
					HoldRepo: holds.NewRepository(conn),
					Store:    store,
					Logger:   e.logg,
				})
				if err != nil {
					return err
				}
				user, err := svc.Promote(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.MatricNo, user.Role)
				return nil
			})
		},
	}
}

// readPassword masks input on a terminal and falls back to a plain line
// read when stdin is piped.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}
	var line string
	if _, err := fmt.Fscanln(cmd.InOrStdin(), &line); err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
