package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/atinyakov/CoOrganizer/internal/app"
	"github.com/atinyakov/CoOrganizer/internal/codec"
	"github.com/atinyakov/CoOrganizer/internal/models"
	"github.com/atinyakov/CoOrganizer/internal/service"
	"github.com/skip2/go-qrcode"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

// withApp opens the installation for the duration of one command.
func withApp(rt *runtime, fn func(c *cli.Context, a *app.App) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		opts := append([]app.Option{app.WithNotifier(app.NewWriterNotifier(c.App.ErrWriter))}, rt.appOpts...)
		a, err := app.Open(c.Context, rt.opts, rt.log.Log, opts...)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				rt.log.Log.Warn("failed to close storage", zap.Error(err))
			}
		}()
		return fn(c, a)
	}
}

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return fmt.Errorf("usage: %s %s", c.Command.HelpName, usage)
	}
	return nil
}

func findGroup(a *app.App, fp string) (models.Group, error) {
	g, ok := a.Groups.FindByFingerprint(models.Fingerprint(strings.ToUpper(fp)))
	if !ok {
		return models.Group{}, fmt.Errorf("%w: %s", service.ErrGroupNotFound, fp)
	}
	return g, nil
}

func groupCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "group",
		Usage: "manage encryption groups",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list groups in display order",
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "#\tNAME\tFINGERPRINT\tCREATED")
					for i, g := range a.Groups.Groups() {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, g.Name, g.Fingerprint, g.Created().Format("2006-01-02 15:04"))
					}
					return tw.Flush()
				}),
			},
			{
				Name:      "create",
				Usage:     "create a group with a fresh key",
				ArgsUsage: "NAME",
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					if err := requireArgs(c, 1, "NAME"); err != nil {
						return err
					}
					g, err := a.Groups.CreateGroup(c.Context, strings.Join(c.Args().Slice(), " "))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Created group %q (%s)\n", g.Name, g.Fingerprint)
					return nil
				}),
			},
			{
				Name:      "join",
				Usage:     "join a group from an invite code or message",
				ArgsUsage: "INVITE",
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					if err := requireArgs(c, 1, "INVITE"); err != nil {
						return err
					}
					g, err := a.Groups.JoinGroup(c.Context, strings.Join(c.Args().Slice(), " "))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Joined group %q (%s)\n", g.Name, g.Fingerprint)
					return nil
				}),
			},
			{
				Name:      "leave",
				Usage:     "leave a group and discard its key",
				ArgsUsage: "FINGERPRINT",
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					if err := requireArgs(c, 1, "FINGERPRINT"); err != nil {
						return err
					}
					g, err := a.Groups.LeaveGroup(c.Context, models.Fingerprint(strings.ToUpper(c.Args().First())))
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Left group %q\n", g.Name)
					return nil
				}),
			},
			{
				Name:      "invite",
				Usage:     "print the invite message for a group",
				ArgsUsage: "FINGERPRINT",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "qr", Usage: "render the invite as a terminal QR code"},
					&cli.BoolFlag{Name: "copy", Usage: "copy the invite to the clipboard"},
				},
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					if err := requireArgs(c, 1, "FINGERPRINT"); err != nil {
						return err
					}
					g, err := findGroup(a, c.Args().First())
					if err != nil {
						return err
					}
					msg := a.Groups.InviteMessage(g)
					fmt.Fprintln(c.App.Writer, msg)
					if c.Bool("qr") {
						qr, err := qrcode.New(msg, qrcode.Medium)
						if err != nil {
							return fmt.Errorf("render qr: %w", err)
						}
						fmt.Fprint(c.App.Writer, qr.ToSmallString(false))
					}
					if c.Bool("copy") {
						if err := a.Groups.CopyInvite(g); err != nil {
							return fmt.Errorf("copy invite: %w", err)
						}
						fmt.Fprintln(c.App.ErrWriter, "Invite copied to clipboard")
					}
					return nil
				}),
			},
			{
				Name:      "move",
				Usage:     "reorder groups",
				ArgsUsage: "FROM TO",
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					if err := requireArgs(c, 2, "FROM TO"); err != nil {
						return err
					}
					from, err1 := strconv.Atoi(c.Args().Get(0))
					to, err2 := strconv.Atoi(c.Args().Get(1))
					if err1 != nil || err2 != nil {
						return fmt.Errorf("FROM and TO must be indices")
					}
					if !a.Groups.MoveGroup(c.Context, from, to) {
						fmt.Fprintln(c.App.Writer, "Nothing moved")
					}
					return nil
				}),
			},
		},
	}
}

func shareCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "share",
		Usage:     "upload captured transactions and print the link",
		ArgsUsage: "FILE (codec JSON document, - for stdin)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "group", Aliases: []string{"g"}, Usage: "fingerprint of the group to encrypt for"},
		},
		Action: withApp(rt, func(c *cli.Context, a *app.App) error {
			if err := requireArgs(c, 1, "FILE"); err != nil {
				return err
			}
			data, err := readInput(c, c.Args().First())
			if err != nil {
				return err
			}
			decoded, err := codec.New(rt.log.Log).Decode(data)
			if err != nil {
				return err
			}
			if decoded.Skipped > 0 {
				fmt.Fprintf(c.App.ErrWriter, "Skipped %d unreadable item(s)\n", decoded.Skipped)
			}

			var group *models.Group
			if fp := c.String("group"); fp != "" {
				g, err := findGroup(a, fp)
				if err != nil {
					return err
				}
				group = &g
			}
			res, err := a.Sharer.Share(c.Context, decoded.Transactions, group)
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, res.URL)
			return nil
		}),
	}
}

func readInput(c *cli.Context, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(c.App.Reader)
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

func serveCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the control API and the importing store proxy",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "listen", Aliases: []string{"l"}, Usage: "address to listen on"},
		},
		Action: withApp(rt, func(c *cli.Context, a *app.App) error {
			addr := rt.opts.ListenAddr
			if c.IsSet("listen") {
				addr = c.String("listen")
			}
			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx, addr)
		}),
	}
}

func organizerCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "organizer",
		Usage: "inspect imported items",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list imported items, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20},
				},
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					items, err := a.Organizer.List(c.Context, c.Int("limit"))
					if err != nil {
						return err
					}
					tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(tw, "IMPORTED\tMETHOD\tURL\tSTATUS\tNOTES")
					for _, it := range items {
						status := "-"
						if it.Transaction.HasResponse() {
							status = strconv.Itoa(it.Transaction.Response.StatusCode)
						}
						notes := ""
						if it.Transaction.Annotations != nil {
							notes = it.Transaction.Annotations.Notes
						}
						fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.ImportedAt.Format("2006-01-02 15:04:05"),
							it.Transaction.Request.Method, it.Transaction.Request.URL, status, notes)
					}
					return tw.Flush()
				}),
			},
		},
	}
}

func debugIDCommand(rt *runtime) *cli.Command {
	show := func(c *cli.Context, d *service.DebugID) {
		if !d.Enabled() {
			fmt.Fprintln(c.App.Writer, "(disabled)")
			return
		}
		fmt.Fprintln(c.App.Writer, d.Value())
	}
	return &cli.Command{
		Name:  "debug-id",
		Usage: "show or reset the id sent with uploads",
		Subcommands: []*cli.Command{
			{
				Name: "show",
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					show(c, a.DebugID)
					return nil
				}),
			},
			{
				Name:  "clear",
				Usage: "stop sending a debug id",
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					if err := a.DebugID.Clear(c.Context); err != nil {
						return err
					}
					show(c, a.DebugID)
					return nil
				}),
			},
			{
				Name:  "regenerate",
				Usage: "replace the debug id with a fresh one",
				Action: withApp(rt, func(c *cli.Context, a *app.App) error {
					if _, err := a.DebugID.Regenerate(c.Context); err != nil {
						return err
					}
					show(c, a.DebugID)
					return nil
				}),
			},
		},
	}
}
