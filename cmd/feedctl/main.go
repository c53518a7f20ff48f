// Command feedctl drives a running relay through its admin API.
//
//	feedctl follow abc123            # follow a live thread, announce it
//	feedctl follow --silent --last-seen 1700000000 https://reddit.com/live/abc123
//	feedctl unfollow                 # stop following, resume scanning
//	feedctl count                    # number of feeds being polled
//	feedctl status                   # mode, feed, last seen, scheduler jobs
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "feedctl:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := &cli.App{
		Name:  "feedctl",
		Usage: "operate a livefeed-relay instance",
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Value:   "http://localhost:8080",
			EnvVars: []string{"FEEDCTL_ADDR"},
			Usage:   "base URL of the relay's HTTP server",
		},
		&cli.StringFlag{
			Name:    "token",
			EnvVars: []string{"ADMIN_TOKEN"},
			Usage:   "admin bearer token",
		},
	}
	app.Commands = []*cli.Command{
		{
			Name:      "follow",
			Usage:     "follow a live thread by id or URL",
			ArgsUsage: "<feed-id|url>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "silent", Usage: "do not announce the switch"},
				&cli.StringFlag{Name: "last-seen", Usage: "unix timestamp of the last delivered update"},
			},
			Action: func(cctx *cli.Context) error {
				if cctx.NArg() != 1 {
					return cli.Exit("follow takes exactly one feed id or URL", 2)
				}
				req := followRequest{FeedID: cctx.Args().First(), Silent: cctx.Bool("silent")}
				if s := cctx.String("last-seen"); s != "" {
					ts, err := strconv.ParseInt(s, 10, 64)
					if err != nil || ts < 0 {
						return cli.Exit(fmt.Sprintf("invalid --last-seen %q", s), 2)
					}
					req.LastSeen = &ts
				}
				var resp struct {
					FeedID string `json:"feed_id"`
				}
				if err := clientFrom(cctx).do(cctx.Context, "POST", "/admin/follow", req, &resp); err != nil {
					return err
				}
				fmt.Fprintf(cctx.App.Writer, "following %s\n", resp.FeedID)
				return nil
			},
		},
		{
			Name:  "unfollow",
			Usage: "stop following the current live thread",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "silent", Usage: "do not announce the switch"},
			},
			Action: func(cctx *cli.Context) error {
				req := unfollowRequest{Silent: cctx.Bool("silent")}
				if err := clientFrom(cctx).do(cctx.Context, "POST", "/admin/unfollow", req, nil); err != nil {
					return err
				}
				fmt.Fprintln(cctx.App.Writer, "unfollowed")
				return nil
			},
		},
		{
			Name:  "count",
			Usage: "print the number of live threads being polled",
			Action: func(cctx *cli.Context) error {
				var resp struct {
					Count int `json:"count"`
				}
				if err := clientFrom(cctx).do(cctx.Context, "GET", "/admin/count", nil, &resp); err != nil {
					return err
				}
				fmt.Fprintf(cctx.App.Writer, "%d\n", resp.Count)
				return nil
			},
		},
		{
			Name:  "status",
			Usage: "print the tracking state",
			Action: func(cctx *cli.Context) error {
				var resp statusResponse
				if err := clientFrom(cctx).do(cctx.Context, "GET", "/status", nil, &resp); err != nil {
					return err
				}
				fmt.Fprintf(cctx.App.Writer, "mode: %s\n", resp.Mode)
				if resp.FeedID != "" {
					fmt.Fprintf(cctx.App.Writer, "feed: %s\n", resp.FeedID)
				}
				if resp.LastSeen != nil {
					fmt.Fprintf(cctx.App.Writer, "last seen: %d\n", *resp.LastSeen)
				}
				for _, j := range resp.Jobs {
					fmt.Fprintf(cctx.App.Writer, "job: %s\n", j)
				}
				return nil
			},
		},
	}
	return app
}

func clientFrom(cctx *cli.Context) *apiClient {
	return newAPIClient(cctx.String("addr"), cctx.String("token"))
}
