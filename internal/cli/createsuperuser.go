package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/recipe-api/internal/apperror"
	"github.com/sakif/recipe-api/internal/auth"
	"github.com/sakif/recipe-api/internal/config"
	"github.com/sakif/recipe-api/internal/service"
)

func newCreateSuperuserCommand() *cobra.Command {
	var email, password, name string

	cmd := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create an account with staff and superuser rights",
		Long: `createsuperuser creates an active account with the staff and superuser
flags set. The email and password go through the same normalization and
validation as API registration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(config.Config.Validate)
			if err != nil {
				return err
			}

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Migrate(cmd.Context()); err != nil {
				return err
			}

			tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
			if err != nil {
				return err
			}
			svc := service.NewAuthService(db, tokens, auth.NewPasswordService(cfg.BcryptCost), logger)

			user, err := svc.CreateSuperuser(cmd.Context(), email, password, name)
			if err != nil {
				var appErr *apperror.AppError
				if errors.As(err, &appErr) && errors.Is(err, apperror.ErrValidation) {
					return fmt.Errorf("invalid superuser: %s", appErr.Message)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Superuser %s created (id %d).\n", user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "login email (required)")
	cmd.Flags().StringVar(&password, "password", "", "password, at least 5 characters (required)")
	cmd.Flags().StringVar(&name, "name", "Admin", "display name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
