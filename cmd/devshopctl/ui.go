package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"devshop/internal/game"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func renderGames(games []game.Game, current int64) {
	accent.Println("\n== GAMES ==")
	if len(games) == 0 {
		printInfo("No games yet. Run `devshopctl game new`.")
		return
	}
	fmt.Printf("  %-6s %-24s %14s\n", "ID", "NAME", "MONEY")
	for _, g := range games {
		marker := " "
		if g.ID == current {
			marker = "*"
		}
		fmt.Printf("%s %-6d %-24s %14s\n", marker, g.ID, truncate(g.Name, 24), formatMoney(g.Money))
	}
	fmt.Println()
}

func renderGameState(st game.GameState) {
	accent.Printf("\n== GAME #%d ==\n", st.Game.ID)
	fmt.Printf("Name:   %s\n", st.Game.Name)
	fmt.Printf("Money:  %s\n", colorizeMoney(st.Game.Money))

	accent.Println("\nDevelopers")
	if len(st.Developers) == 0 {
		printInfo("  none")
	}
	for _, d := range st.Developers {
		status := success.Sprint("idle")
		if d.Busy && d.ProjectID != nil {
			status = warn.Sprintf("on #%d", *d.ProjectID)
		}
		fmt.Printf("  %-6d %-20s seniority %-3d %s\n", d.ID, truncate(d.Name, 20), d.Seniority, status)
	}

	accent.Println("\nSalespeople")
	if len(st.Salespeople) == 0 {
		printInfo("  none")
	}
	for _, sp := range st.Salespeople {
		status := success.Sprint("idle")
		if sp.Busy {
			status = warn.Sprint("selling ") + progressBar(sp.Progress)
		}
		fmt.Printf("  %-6d %-20s experience %-3d %s\n", sp.ID, truncate(sp.Name, 20), sp.Experience, status)
	}

	fmt.Println()
	renderProjects(st.Projects)
}

func renderProjects(projects []game.Project) {
	accent.Println("Projects")
	if len(projects) == 0 {
		printInfo("  none")
		fmt.Println()
		return
	}
	for _, p := range projects {
		var state string
		switch {
		case p.Completed:
			state = success.Sprint("done")
		case p.Assigned:
			state = progressBar(p.Progress)
		default:
			state = neutral.Sprint("unassigned")
		}
		fmt.Printf("  %-6d %-24s c%d %12s  %s\n", p.ID, truncate(p.Name, 24), p.Complexity, formatMoney(p.Value), state)
	}
	fmt.Println()
}

func renderTickReport(r game.TickReport) {
	accent.Printf("\n== TICK game #%d ==\n", r.GameID)
	fmt.Printf("Projects advanced:    %d\n", r.ProjectsAdvanced)
	fmt.Printf("Projects completed:   %d\n", r.ProjectsCompleted)
	fmt.Printf("Salespeople advanced: %d\n", r.SalespeopleAdvanced)
	fmt.Printf("Projects spawned:     %d\n", r.ProjectsSpawned)
	fmt.Printf("Events published:     %d\n", r.Published)
	for _, f := range r.Failures {
		printError(fmt.Sprintf("  %s #%d: %s", f.Kind, f.ID, f.Message))
	}
	fmt.Println()
}

func progressBar(p float64) string {
	const width = 20
	filled := int(p * width)
	filled = max(0, min(width, filled))
	return fmt.Sprintf("[%s%s] %5.1f%%", strings.Repeat("#", filled), strings.Repeat(".", width-filled), p*100)
}

func colorizeMoney(m game.Money) string {
	text := formatMoney(m)
	if m <= 0 {
		return danger.Sprint(text)
	}
	return success.Sprint(text)
}

func formatMoney(m game.Money) string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%s.%02d", sign, comma(v/game.CentsPerUnit), v%game.CentsPerUnit)
}

func comma(v int64) string {
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
