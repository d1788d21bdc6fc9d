package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/litshare/internal/config"
	"github.com/smallbiznis/litshare/internal/domain"
)

// Registrar creates user accounts.
type Registrar interface {
	Register(ctx context.Context, username, phone, password string) (int64, error)
}

// EnsureAdmin creates the platform admin account on start when ADMIN_PHONE and
// ADMIN_PASSWORD are both set.
func EnsureAdmin(lc fx.Lifecycle, cfg config.Config, users Registrar, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureAdmin(ctx, cfg, users, logger)
		},
	})
}

func ensureAdmin(ctx context.Context, cfg config.Config, users Registrar, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	phone := strings.TrimSpace(cfg.AdminPhone)
	if phone == "" || cfg.AdminPassword == "" {
		logger.Debug("admin bootstrap skipped")
		return nil
	}
	if len(cfg.AdminUsernames) == 0 {
		return fmt.Errorf("admin bootstrap: ADMIN_USERNAMES is empty")
	}
	username := cfg.AdminUsernames[0]

	userID, err := users.Register(ctx, username, phone, cfg.AdminPassword)
	switch {
	case errors.Is(err, domain.ErrDuplicateUser):
		logger.Info("bootstrap admin user already exists", zap.String("username", username))
		return nil
	case err != nil:
		return fmt.Errorf("bootstrap create admin: %w", err)
	}

	logger.Info("bootstrap admin user created",
		zap.String("username", username),
		zap.Int64("user_id", userID),
	)
	return nil
}
