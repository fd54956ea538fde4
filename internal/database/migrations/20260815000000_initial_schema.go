package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/groupwarden/warden/internal/database/types"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.GroupPolicy)(nil),
			(*types.Warning)(nil),
			(*types.Membership)(nil),
			(*types.BlacklistWord)(nil),
			(*types.Filter)(nil),
			(*types.Federation)(nil),
			(*types.FedAdmin)(nil),
			(*types.FedGroup)(nil),
			(*types.FedBan)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		// Warning counts are queried per (group,user) on every warn
		_, err := db.NewCreateIndex().
			Model((*types.Warning)(nil)).
			Index("warnings_group_user_idx").
			IfNotExists().
			Column("group_id", "user_id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create warnings index: %w", err)
		}

		// Fan-out iterates the member groups of a federation
		_, err = db.NewCreateIndex().
			Model((*types.FedGroup)(nil)).
			Index("fed_groups_fed_idx").
			IfNotExists().
			Column("fed_id").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create fed_groups index: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.FedBan)(nil),
			(*types.FedGroup)(nil),
			(*types.FedAdmin)(nil),
			(*types.Federation)(nil),
			(*types.Filter)(nil),
			(*types.BlacklistWord)(nil),
			(*types.Membership)(nil),
			(*types.Warning)(nil),
			(*types.GroupPolicy)(nil),
		}

		for _, model := range models {
			_, err := db.NewDropTable().
				Model(model).
				IfExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table for %T: %w", model, err)
			}
		}

		return nil
	})
}
