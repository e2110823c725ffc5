package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"studymed-quiz-service/internal/auth"
	"studymed-quiz-service/internal/config"
)

// NewTokenCmd issues a bearer token signed with auth.jwtSecret, for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		sub  string
		role string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			tok, err := auth.NewVerifier(cfg.Auth.JWTSecret).IssueToken(sub, role, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}
	cmd.Flags().StringVar(&sub, "sub", "", "user id")
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "user or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("sub")
	return cmd
}
