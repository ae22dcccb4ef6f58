package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rebolloluis/family-tree/internal/config"
	"github.com/rebolloluis/family-tree/internal/genealogy"
	"github.com/rebolloluis/family-tree/internal/models"
	"github.com/rebolloluis/family-tree/internal/seed"
	"github.com/rebolloluis/family-tree/internal/services"
	"github.com/rebolloluis/family-tree/pkg/logger"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// app is what every subcommand needs once the root command has run.
type app struct {
	cfg      *config.Config
	db       *gorm.DB
	persist  *services.GormPersistence
	families *services.FamilyService
}

func newRootCmd() *cobra.Command {
	var configPath string
	a := &app{}

	root := &cobra.Command{
		Use:           "treectl",
		Short:         "Inspect and seed family trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = os.Getenv("CONFIG_PATH")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger.Init(cfg.Log.Level)
			return a.open(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (defaults to $CONFIG_PATH or ./config.yaml)")

	root.AddCommand(
		newSeedCmd(a),
		newLayoutCmd(a),
		newDescendantsCmd(a),
		newFamiliesCmd(a),
	)
	return root
}

func (a *app) open(ctx context.Context, cfg *config.Config) error {
	db, err := models.Open(&cfg.Database)
	if err != nil {
		return err
	}
	if err := models.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := services.NewPhotoStore(ctx, cfg.Upload)
	if err != nil {
		return err
	}
	uploads := services.NewUploadService(store, cfg.Upload.MaxUploadBytes())

	a.cfg = cfg
	a.db = db
	a.persist = services.NewGormPersistence(db, services.NewChangeHub(), uploads)
	a.families = services.NewFamilyService(db)
	return nil
}

func (a *app) geometry() genealogy.Geometry {
	return genealogy.Geometry{
		CardWidth:  a.cfg.Layout.CardWidth,
		CardHeight: a.cfg.Layout.CardHeight,
		GapX:       a.cfg.Layout.GapX,
		GapY:       a.cfg.Layout.GapY,
	}
}

func newSeedCmd(a *app) *cobra.Command {
	var owner string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Create demo families",
	}
	starkCmd := &cobra.Command{
		Use:   "stark",
		Short: "Create the Stark family owned by --owner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var user models.User
			if err := a.db.Where("username = ?", owner).First(&user).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("user %q not found", owner)
				}
				return err
			}
			family, ids, err := seed.Stark(cmd.Context(), a.families, a.persist, user.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created family %s (%s) with %d members\n", family.Name, family.ID, len(ids))
			return nil
		},
	}
	starkCmd.Flags().StringVar(&owner, "owner", "admin", "username of the family owner")
	seedCmd.AddCommand(starkCmd)
	return seedCmd
}

func newLayoutCmd(a *app) *cobra.Command {
	var svg bool
	cmd := &cobra.Command{
		Use:   "layout <family-id>",
		Short: "Print the generations and connectors of a family as JSON, or as SVG with --svg",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			members, err := a.persist.ListMembers(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			layout := genealogy.BuildLayout(members, a.geometry())
			if svg {
				_, err := fmt.Fprint(cmd.OutOrStdout(), layout.SVG())
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(layout)
		},
	}
	cmd.Flags().BoolVar(&svg, "svg", false, "render SVG instead of JSON")
	return cmd
}

func newDescendantsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "descendants <member-id>",
		Short: "List everyone below a member, nearest generation first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var member models.Member
			if err := a.db.WithContext(cmd.Context()).First(&member, "id = ?", args[0]).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return services.ErrMemberNotFound
				}
				return err
			}
			members, err := a.persist.ListMembers(cmd.Context(), member.FamilyID)
			if err != nil {
				return err
			}
			idx := genealogy.NewIndex(members)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, id := range idx.Descendants(member.ID) {
				fmt.Fprintf(w, "%s\t%s\n", id, idx.Get(id).Name)
			}
			return w.Flush()
		},
	}
}

func newFamiliesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "families",
		Short: "List all families",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			families, err := a.families.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tOWNER\tMEMBERS")
			for _, f := range families {
				var count int64
				if err := a.db.WithContext(cmd.Context()).Model(&models.Member{}).Where("family_id = ?", f.ID).Count(&count).Error; err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", f.ID, f.Name, f.OwnerID, count)
			}
			return w.Flush()
		},
	}
}
