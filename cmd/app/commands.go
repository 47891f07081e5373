package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/identity"
	"github.com/starford/raido/internal/system"
	"github.com/starford/raido/internal/task"
	"github.com/starford/raido/internal/taskservice"
)

func initCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Create a repository in the given directory",
		ArgsUsage: "[dir]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dir := cmd.Args().First()
			if dir == "" {
				dir = "."
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			sys, err := system.Init(dir, system.WithLogger(cliLogger(cfg, cmd.Bool("verbose"))))
			if err != nil {
				return err
			}
			defer sys.Close()
			fmt.Fprintf(os.Stdout, "initialized raido repository in %s\n", sys.Root())
			return nil
		},
	}
}

func identityCommand() *cli.Command {
	return &cli.Command{
		Name:  "identity",
		Usage: "Manage the identity that signs changes",
		Commands: []*cli.Command{
			{
				Name:  "new",
				Usage: "Generate a signing key pair for the configured profile",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "Display name", Required: true},
					&cli.StringFlag{Name: "email", Usage: "Email address", Required: true},
					&cli.BoolFlag{Name: "force", Usage: "Replace an existing identity"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					dir, err := cfg.Identity.Directory()
					if err != nil {
						return err
					}
					if existing, err := identity.LoadCurrent(dir); err == nil && !cmd.Bool("force") {
						return apperr.New(apperr.ErrAlreadyExists, "identity: new", "%s already exists in %s (use --force)", existing, dir)
					} else if err != nil && !errors.Is(err, apperr.ErrNotFound) {
						return err
					}
					id, err := identity.Generate(cmd.String("name"), cmd.String("email"))
					if err != nil {
						return err
					}
					if err := id.Save(dir); err != nil {
						return err
					}
					fmt.Fprintf(os.Stdout, "created identity %s\n  key: %s\n  dir: %s\n", id, id.Key(), dir)
					return nil
				},
			},
			{
				Name:  "show",
				Usage: "Print the configured identity",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					cfg, err := loadConfig(cmd)
					if err != nil {
						return err
					}
					dir, err := cfg.Identity.Directory()
					if err != nil {
						return err
					}
					id, err := identity.LoadCurrent(dir)
					if err != nil {
						return err
					}
					fmt.Fprintf(os.Stdout, "%s\n  key: %s\n  can sign: %t\n", id, id.Key(), id.CanSign())
					return nil
				},
			},
		},
	}
}

func jsonFlag() cli.Flag {
	return &cli.BoolFlag{Name: "json", Usage: "Print JSON"}
}

func createCommand() *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create a task as the next number of its team",
		ArgsUsage: "<title>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "team", Aliases: []string{"t"}, Usage: "Team key, e.g. eng", Required: true},
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Initial status"},
			&cli.StringFlag{Name: "assignee", Aliases: []string{"a"}, Usage: `Assignee email, or "me"`},
			&cli.StringSliceFlag{Name: "label", Aliases: []string{"l"}, Usage: "Label (repeatable)"},
			&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "Markdown description"},
			jsonFlag(),
		},
		Action: withService(func(ctx context.Context, cmd *cli.Command, svc *taskservice.Service) error {
			title := cmd.Args().First()
			if title == "" {
				return cli.Exit("create: title is required", 2)
			}
			t := &task.Task{
				Title:       title,
				Assignee:    cmd.String("assignee"),
				Labels:      cmd.StringSlice("label"),
				Description: cmd.String("description"),
			}
			if st := cmd.String("status"); st != "" {
				var err error
				if t.Status, err = task.ParseStatus(st); err != nil {
					return err
				}
			}
			d, err := svc.Create(ctx, cmd.String("team"), t)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(d)
			}
			fmt.Fprintf(os.Stdout, "created %s (%s)\n", d.ID, d.Path)
			return nil
		}),
	}
}

func showCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print a task with the changes that created and last updated it",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: withService(func(ctx context.Context, cmd *cli.Command, svc *taskservice.Service) error {
			d, err := svc.Show(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(d)
			}
			printDetail(os.Stdout, d)
			return nil
		}),
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "team", Aliases: []string{"t"}, Usage: "Only tasks of this team"},
		&cli.StringFlag{Name: "assignee", Aliases: []string{"a"}, Usage: `Only tasks assigned to this email, or "me"`},
		&cli.StringFlag{Name: "group", Aliases: []string{"g"}, Usage: "Status group: open, in-progress or closed"},
	}
}

func listOptions(cmd *cli.Command) (taskservice.ListOptions, error) {
	opts := taskservice.ListOptions{
		Team:     cmd.String("team"),
		Assignee: cmd.String("assignee"),
	}
	if g := cmd.String("group"); g != "" {
		group, err := task.ParseGroup(g)
		if err != nil {
			return opts, err
		}
		opts.Group = group
	}
	return opts, nil
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List tasks from the index",
		Flags: append(filterFlags(), jsonFlag()),
		Action: withService(func(ctx context.Context, cmd *cli.Command, svc *taskservice.Service) error {
			opts, err := listOptions(cmd)
			if err != nil {
				return err
			}
			items, err := svc.List(ctx, opts)
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(items)
			}
			printList(os.Stdout, items)
			return nil
		}),
	}
}

func editFlags(prefix string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: prefix + "status", Usage: "New status"},
		&cli.StringFlag{Name: prefix + "assignee", Usage: `New assignee email, "me", or "" to clear`},
		&cli.StringSliceFlag{Name: "add-label", Usage: "Label to add (repeatable)"},
		&cli.StringSliceFlag{Name: "remove-label", Usage: "Label to remove (repeatable)"},
	}
}

// buildEdit reads the edit flags; a flag that was not passed leaves its field alone.
func buildEdit(cmd *cli.Command, prefix string) taskservice.Edit {
	opt := func(name string) *string {
		if !cmd.IsSet(name) {
			return nil
		}
		v := cmd.String(name)
		return &v
	}
	return taskservice.Edit{
		Title:       opt("title"),
		Status:      opt(prefix + "status"),
		Assignee:    opt(prefix + "assignee"),
		Description: opt("description"),
		AddLabels:   cmd.StringSlice("add-label"),
		DelLabels:   cmd.StringSlice("remove-label"),
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Change fields of a task",
		ArgsUsage: "<id>",
		Flags: append(editFlags(""),
			&cli.StringFlag{Name: "title", Usage: "New title"},
			&cli.StringFlag{Name: "description", Usage: "New Markdown description"},
			jsonFlag(),
		),
		Action: withService(func(ctx context.Context, cmd *cli.Command, svc *taskservice.Service) error {
			id := cmd.Args().First()
			d, changed, err := svc.Edit(ctx, id, buildEdit(cmd, ""))
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(d)
			}
			if !changed {
				fmt.Fprintf(os.Stdout, "%s unchanged\n", id)
				return nil
			}
			fmt.Fprintf(os.Stdout, "updated %s\n", id)
			return nil
		}),
	}
}

func bulkEditCommand() *cli.Command {
	flags := append(filterFlags(), editFlags("set-")...)
	flags = append(flags,
		&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Report what would change without recording anything"},
		jsonFlag(),
	)
	return &cli.Command{
		Name:  "bulk-edit",
		Usage: "Apply one edit to every task matching the filters",
		Flags: flags,
		Action: withService(func(ctx context.Context, cmd *cli.Command, svc *taskservice.Service) error {
			opts, err := listOptions(cmd)
			if err != nil {
				return err
			}
			dryRun := cmd.Bool("dry-run")
			results, err := svc.BulkEdit(ctx, opts, buildEdit(cmd, "set-"), dryRun)
			if cmd.Bool("json") {
				if perr := printJSON(results); perr != nil {
					return perr
				}
				return err
			}
			printBulk(os.Stdout, results, dryRun)
			return err
		}),
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:      "history",
		Usage:     "List every change touching a task, most recent first",
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{jsonFlag()},
		Action: withService(func(ctx context.Context, cmd *cli.Command, svc *taskservice.Service) error {
			changes, err := svc.History(ctx, cmd.Args().First())
			if err != nil {
				return err
			}
			if cmd.Bool("json") {
				return printJSON(changes)
			}
			printHistory(os.Stdout, changes)
			return nil
		}),
	}
}

func reindexCommand() *cli.Command {
	return &cli.Command{
		Name:      "reindex",
		Usage:     "Rebuild index rows from the working copy for a team or a single task",
		ArgsUsage: "<team|id>",
		Action: withService(func(ctx context.Context, cmd *cli.Command, svc *taskservice.Service) error {
			target := cmd.Args().First()
			if target == "" {
				return cli.Exit("reindex: team or task id is required", 2)
			}
			n, err := svc.Reindex(ctx, target)
			fmt.Fprintf(os.Stdout, "reindexed %d task(s) in %s\n", n, target)
			return err
		}),
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Reconcile the whole index with the working copy",
		Action: withService(func(ctx context.Context, cmd *cli.Command, svc *taskservice.Service) error {
			res, err := svc.Sync(ctx)
			fmt.Fprintf(os.Stdout, "indexed %d, removed %d, failed %d\n", res.Indexed, res.Removed, res.Failed)
			return err
		}),
	}
}
