// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func outputFlags(prettyDefault bool) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print output",
			Value: prettyDefault,
		},
	}
}

// listsCommand handles draft and saved list operations
func listsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "lists",
		Aliases: []string{"l"},
		Usage:   "Create, edit and save lists",
		Action:  r.ListsShow,
		Commands: []*cli.Command{
			{
				Name:    "all",
				Aliases: []string{"ls"},
				Usage:   "Print every draft and saved list",
				Flags:   outputFlags(false),
				Action:  r.ListsShow,
			},
			{
				Name:   "show",
				Usage:  "Print one list in running order",
				Flags:  outputFlags(true),
				Action: r.ListsGet,
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
			},
			{
				Name:  "new",
				Usage: "Create a draft list",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "name"},
				},
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "save",
						Usage: "Save the list to the remote store right away",
					},
				},
				Action: r.ListsNew,
			},
			{
				Name:  "rename",
				Usage: "Rename a list",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "name"},
				},
				Action: r.ListsRename,
			},
			{
				Name:  "add",
				Usage: "Add a song or card from the catalog",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "item"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "kind",
						Aliases: []string{"k"},
						Usage:   "Item kind (song or card)",
						Value:   "song",
					},
					&cli.IntFlag{
						Name:  "at",
						Usage: "Position to insert at (1-based); appends when omitted",
					},
				},
				Action: r.ListsAdd,
			},
			{
				Name:    "remove",
				Aliases: []string{"rm"},
				Usage:   "Remove an item from a list",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
					&cli.StringArg{Name: "item"},
				},
				Action: r.ListsRemove,
			},
			{
				Name:  "reorder",
				Usage: "Set the running order of a list",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "order",
						Usage: "Every item id in the new order; omitted items are removed",
					},
					&cli.StringFlag{
						Name:  "move",
						Usage: "Item id to move",
					},
					&cli.IntFlag{
						Name:  "by",
						Usage: "Positions to move --move by (negative moves up)",
						Value: -1,
					},
				},
				Action: r.ListsReorder,
			},
			{
				Name:    "promote",
				Aliases: []string{"save"},
				Usage:   "Save a draft to the remote store",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.ListsPromote,
			},
			{
				Name:    "delete",
				Aliases: []string{"del"},
				Usage:   "Delete a draft or saved list",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Action: r.ListsDelete,
			},
			{
				Name:  "export",
				Usage: "Export a list to CSV, Markdown, text or JSON",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "id"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (csv, md, txt, json)",
						Value:   "md",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path (default: <id>.<format>)",
					},
				},
				Action: r.ListsExport,
			},
			{
				Name:  "export-all",
				Usage: "Export every list to its own file, with a manifest",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format (csv, md, txt, json)",
						Value:   "md",
					},
					&cli.StringFlag{
						Name:    "dir",
						Aliases: []string{"d"},
						Usage:   "Output directory (default: setlist_export_<epoch>)",
					},
					&cli.StringSliceFlag{
						Name:  "id",
						Usage: "Export only these lists, repeat for each",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent exports (max 10)",
						Value: 4,
					},
					&cli.BoolFlag{
						Name:  "saved-only",
						Usage: "Skip drafts",
					},
					&cli.BoolFlag{
						Name:  "no-refresh",
						Usage: "Write cached item content without asking the catalog",
					},
				},
				Action: r.ListsExportAll,
			},
			{
				Name:   "watch",
				Usage:  "Print list changes as they happen",
				Action: r.ListsWatch,
			},
		},
	}
}

// catalogCommand handles song and card catalog operations
func catalogCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "catalog",
		Aliases: []string{"cat"},
		Usage:   "Browse and edit the song & card catalog",
		Commands: []*cli.Command{
			{
				Name:   "songs",
				Usage:  "List catalog songs",
				Flags:  outputFlags(true),
				Action: r.CatalogSongs,
			},
			{
				Name:   "cards",
				Usage:  "List catalog cards",
				Flags:  outputFlags(true),
				Action: r.CatalogCards,
			},
			{
				Name:  "add-song",
				Usage: "Add a song to the local catalog",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Song ID (generated when omitted)",
					},
					&cli.StringFlag{
						Name:     "title",
						Usage:    "Song title",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "verse",
						Usage: "Verse text, repeat for each verse",
					},
				},
				Action: r.CatalogAddSong,
			},
			{
				Name:  "add-card",
				Usage: "Add a card to the local catalog",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "id",
						Usage: "Card ID (generated when omitted)",
					},
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Card name",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "title",
						Usage: "Title shown on the card",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "Card type",
						Value: "image",
					},
					&cli.StringSliceFlag{
						Name:  "image",
						Usage: "Image URL, repeat for each image",
					},
				},
				Action: r.CatalogAddCard,
			},
		},
	}
}

// serveCommand runs the list server
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve lists and the catalog over HTTP with a websocket change feed",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Serve even when remote.url is set",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command for interactive list editing.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive list editor",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log",
				Usage: "Log file path",
				Value: "./tmp/setlist-tui.log",
			},
		},
		Action: r.TUI,
	}
}
