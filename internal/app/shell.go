package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"runclub/internal/club"
	"runclub/internal/render"
	"runclub/internal/stats"
)

const shellHelp = `Commands:
  home | feed | events          show a page
  leaderboard [weekly|monthly|total]
  checkin DATE DISTANCE DURATION [FEELING...]
  join EVENT | leave EVENT
  like RUN | comment RUN TEXT...
  login NAME | logout | whoami
  push [VAULT] | pull [VAULT]
  help | quit`

// RunShell reads commands from in until EOF or "quit", writing output to
// out. Errors from individual commands are reported and the loop continues.
func (a *App) RunShell(ctx context.Context, in io.Reader, out io.Writer) error {
	a.Render(ctx, out)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return nil
		}
		if err := a.dispatch(ctx, args[0], args[1:], out); err != nil {
			fmt.Fprintln(out, UserMessage(err))
		}
	}
	return scanner.Err()
}

func (a *App) dispatch(ctx context.Context, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "help":
		fmt.Fprintln(out, shellHelp)
		return nil

	case "home", "feed", "events":
		return a.show(ctx, Page(cmd), out)

	case "leaderboard":
		window := stats.Weekly
		if len(args) > 0 {
			w, err := stats.ParseWindow(args[0])
			if err != nil {
				return err
			}
			window = w
		}
		if err := a.SelectLeaderboardWindow(window, render.TabControl(window)); err != nil {
			return err
		}
		return a.show(ctx, PageLeaderboard, out)

	case "checkin":
		if len(args) < 3 {
			return fmt.Errorf("usage: checkin DATE DISTANCE DURATION [FEELING...]")
		}
		run, err := a.SubmitCheckin(ctx, club.CheckinForm{
			Date:     args[0],
			Distance: args[1],
			Duration: args[2],
			Feeling:  strings.Join(args[3:], " "),
		})
		if err != nil && run.ID == "" {
			return err
		}
		fmt.Fprintf(out, "Logged run %s: pace %s\n", run.ID, stats.FormatPace(stats.RunPace(run)))
		return err

	case "join", "leave":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s EVENT", cmd)
		}
		join := a.JoinEvent
		if cmd == "leave" {
			join = a.LeaveEvent
		}
		ev, err := join(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d/%d\n", ev.Title, len(ev.Participants), ev.MaxParticipants)
		return nil

	case "like":
		if len(args) != 1 {
			return fmt.Errorf("usage: like RUN")
		}
		liked, err := a.Like(ctx, args[0])
		if err != nil {
			return err
		}
		if liked {
			fmt.Fprintln(out, "Liked.")
		} else {
			fmt.Fprintln(out, "Unliked.")
		}
		return nil

	case "comment":
		if len(args) < 2 {
			return fmt.Errorf("usage: comment RUN TEXT...")
		}
		if _, err := a.Comment(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		fmt.Fprintln(out, "Comment posted.")
		return nil

	case "login":
		if len(args) == 0 {
			return fmt.Errorf("usage: login NAME")
		}
		u, err := a.Login(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged in as %s.\n", u.DisplayName)
		return nil

	case "logout":
		if err := a.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Logged out.")
		return nil

	case "whoami":
		render.WriteStatus(out, a.Status())
		return nil

	case "push":
		version, err := a.PushSnapshot(ctx, firstArg(args))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Snapshot %d pushed.\n", version)
		return nil

	case "pull":
		version, err := a.PullSnapshot(ctx, firstArg(args), "")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Snapshot %d restored.\n", version)
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func (a *App) show(ctx context.Context, page Page, out io.Writer) error {
	if err := a.Navigate(ctx, page); err != nil {
		return err
	}
	a.Render(ctx, out)
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
