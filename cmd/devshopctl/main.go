package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "devshop/internal/cli"
	"devshop/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const requestTimeout = 30 * time.Second

type app struct {
	apiBase string
	gameID  int64
}

func main() {
	cfg := config.LoadCLIFromEnv()
	a := &app{apiBase: cfg.APIBaseURL}

	root := &cobra.Command{
		Use:          "devshopctl",
		Short:        "Dev shop simulation client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&a.apiBase, "api", a.apiBase, "API base URL")
	root.PersistentFlags().Int64Var(&a.gameID, "game", 0, "game id (defaults to the current game)")

	root.AddCommand(
		a.newGameCmd(),
		a.newHireCmd(),
		a.newFireCmd(),
		a.newProjectCmd(),
		a.newSellCmd(),
		a.newTickCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) client() *cl.Client {
	return cl.NewClient(strings.TrimSpace(a.apiBase))
}

// currentGame resolves --game, falling back to the game saved in the session.
func (a *app) currentGame() (int64, error) {
	if a.gameID > 0 {
		return a.gameID, nil
	}
	sess, err := cl.LoadSession()
	if err != nil {
		return 0, err
	}
	if sess.GameID == 0 {
		return 0, errors.New("no current game: pass --game or run `devshopctl game use ID`")
	}
	return sess.GameID, nil
}

func parseID(arg, kind string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", kind, arg)
	}
	return id, nil
}

func (a *app) newGameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "game",
		Short: "Create, inspect and switch games",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "new [name]",
		Short: "Start a new game and make it current",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				var err error
				if name, err = promptRequired("Game name"); err != nil {
					return err
				}
			}
			sess, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			st, err := a.client().CreateGame(ctx, name, sess.SessionID)
			if err != nil {
				return err
			}
			sess.GameID = st.Game.ID
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Game #%d created.", st.Game.ID))
			renderGameState(st)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List games in this session",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := cl.LoadSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			games, err := a.client().ListGames(ctx, sess.SessionID)
			if err != nil {
				return err
			}
			renderGames(games, sess.GameID)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the current game",
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := a.currentGame()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			st, err := a.client().GameState(ctx, gameID)
			if err != nil {
				return err
			}
			renderGameState(st)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "use <game-id>",
		Short: "Make a game current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := parseID(args[0], "game")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if _, err := a.client().GameState(ctx, gameID); err != nil {
				return err
			}
			sess, err := cl.LoadSession()
			if err != nil {
				return err
			}
			sess.GameID = gameID
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Now playing game #%d.", gameID))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete",
		Short: "Delete the current game",
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := a.currentGame()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := a.client().DeleteGame(ctx, gameID); err != nil {
				return err
			}
			sess, err := cl.LoadSession()
			if err != nil {
				return err
			}
			if sess.GameID == gameID {
				sess.GameID = 0
				if err := cl.SaveSession(sess); err != nil {
					return err
				}
			}
			printSuccess(fmt.Sprintf("Game #%d deleted.", gameID))
			return nil
		},
	})

	return cmd
}

func (a *app) newHireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hire",
		Short: "Hire developers and salespeople",
	}

	var seniority int
	var devCost float64
	dev := &cobra.Command{
		Use:   "dev <name>",
		Short: "Hire a developer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := a.currentGame()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := a.client().HireDeveloper(ctx, gameID, args[0], seniority, devCost, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Hired developer #%d %s. Money left: %s", out.Worker.ID, out.Worker.Name, formatMoney(out.RemainingMoney)))
			return nil
		},
	}
	dev.Flags().IntVar(&seniority, "seniority", 1, "developer seniority")
	dev.Flags().Float64Var(&devCost, "cost", 0, "hiring cost")

	var experience int
	var spCost float64
	sales := &cobra.Command{
		Use:     "sales <name>",
		Aliases: []string{"salesperson"},
		Short:   "Hire a salesperson",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := a.currentGame()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := a.client().HireSalesperson(ctx, gameID, args[0], experience, spCost, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Hired salesperson #%d %s. Money left: %s", out.Worker.ID, out.Worker.Name, formatMoney(out.RemainingMoney)))
			return nil
		},
	}
	sales.Flags().IntVar(&experience, "experience", 1, "salesperson experience")
	sales.Flags().Float64Var(&spCost, "cost", 0, "hiring cost")

	cmd.AddCommand(dev, sales)
	return cmd
}

func (a *app) newFireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fire",
		Short: "Let a worker go",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "dev <developer-id>",
		Short: "Fire a developer, unassigning their project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "developer")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := a.client().FireDeveloper(ctx, id); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Developer #%d fired.", id))
			return nil
		},
	}, &cobra.Command{
		Use:   "sales <salesperson-id>",
		Short: "Fire a salesperson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "salesperson")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := a.client().FireSalesperson(ctx, id); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Salesperson #%d fired.", id))
			return nil
		},
	})
	return cmd
}

func (a *app) newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "project",
		Aliases: []string{"projects"},
		Short:   "Buy, list and staff projects",
	}

	var complexity int
	var value float64
	create := &cobra.Command{
		Use:   "new <name>",
		Short: "Buy a project (costs a fee on its value)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := a.currentGame()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			p, err := a.client().CreateProject(ctx, gameID, args[0], complexity, value, uuid.NewString())
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Project #%d %q created, worth %s.", p.ID, p.Name, formatMoney(p.Value)))
			return nil
		},
	}
	create.Flags().IntVar(&complexity, "complexity", 1, "complexity 1-5")
	create.Flags().Float64Var(&value, "value", 1000, "project value")

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects of the current game",
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := a.currentGame()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			projects, err := a.client().ListProjects(ctx, gameID)
			if err != nil {
				return err
			}
			fmt.Println()
			renderProjects(projects)
			return nil
		},
	}

	assign := &cobra.Command{
		Use:   "assign <project-id> <developer-id>",
		Short: "Put a developer on a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			developerID, err := parseID(args[1], "developer")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			out, err := a.client().AssignDeveloper(ctx, projectID, developerID)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s is now working on %s.", out.Developer.Name, out.Project.Name))
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Drop a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "project")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			if err := a.client().DeleteProject(ctx, id); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Project #%d deleted.", id))
			return nil
		},
	}

	cmd.AddCommand(create, list, assign, remove)
	return cmd
}

func (a *app) newSellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sell <salesperson-id>",
		Short: "Send a salesperson out to find a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "salesperson")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
			defer cancel()
			sp, err := a.client().StartSelling(ctx, id)
			if err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("%s is out selling.", sp.Name))
			return nil
		},
	}
}

func (a *app) newTickCmd() *cobra.Command {
	var times int
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Advance the current game",
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := a.currentGame()
			if err != nil {
				return err
			}
			for i := 0; i < max(1, times); i++ {
				ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
				report, err := a.client().Tick(ctx, gameID)
				cancel()
				if err != nil {
					return err
				}
				renderTickReport(report)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&times, "times", "n", 1, "number of ticks to run")
	return cmd
}
