// Package main provides the lectio command: a verse-by-verse Latin reader.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/alecthomas/kong"

	"github.com/bobmcallan/lectio/internal/app"
	"github.com/bobmcallan/lectio/internal/common"
	"github.com/bobmcallan/lectio/internal/ui"
)

// CLI defines the command-line interface using Kong
var CLI struct {
	Config string `name:"config" short:"c" help:"Config file (default: lectio.toml beside the binary, then config/lectio.toml)" type:"path"`

	Read    ReadCmd    `cmd:"" default:"withargs" help:"Open the reader at a location, or where you left off"`
	Books   BooksCmd   `cmd:"" help:"List the books in the catalog"`
	Cache   CacheCmd   `cmd:"" help:"Inspect or clear the analysis cache"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// ReadCmd runs the terminal reader
type ReadCmd struct {
	Location string `arg:"" optional:"" help:"Location as /{book}/{chapter}/{verse}, e.g. /Ex/3/14"`
}

func (r *ReadCmd) Run() error {
	a, err := app.NewApp(CLI.Config, true)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pos, err := a.StartPosition(ctx, r.Location)
	if err != nil {
		return err
	}

	common.PrintBanner(os.Stdout, a.Config, a.Logger)
	if err := a.Reader.Start(ctx, pos); err != nil {
		return err
	}

	view := ui.New(a)
	go func() {
		<-ctx.Done()
		view.Stop()
	}()
	if err := view.Run(); err != nil {
		return fmt.Errorf("reader UI failed: %w", err)
	}

	common.PrintShutdownBanner(os.Stdout, a.Logger)
	return nil
}

// BooksCmd lists the catalog
type BooksCmd struct{}

func (b *BooksCmd) Run() error {
	a, err := app.NewApp(CLI.Config, false)
	if err != nil {
		return err
	}
	defer a.Close()

	books, err := a.Client.ListBooks(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list books: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ABBR\tNAME\tLATIN\tCHAPTERS")
	for _, book := range books {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", book.Abbreviation, book.Name, book.LatinName, book.ChapterCount)
	}
	return w.Flush()
}

// CacheCmd groups the cache subcommands
type CacheCmd struct {
	List  CacheListCmd  `cmd:"" help:"List cached verse references"`
	Clear CacheClearCmd `cmd:"" help:"Remove cached analyses"`
}

// CacheListCmd prints every cached reference
type CacheListCmd struct{}

func (c *CacheListCmd) Run() error {
	a, err := app.NewApp(CLI.Config, false)
	if err != nil {
		return err
	}
	defer a.Close()

	refs, err := a.Cache.Refs(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list cache: %w", err)
	}
	for _, ref := range refs {
		fmt.Println(ref)
	}
	fmt.Printf("%d cached\n", len(refs))
	return nil
}

// CacheClearCmd removes one entry or all of them
type CacheClearCmd struct {
	Ref string `name:"ref" short:"r" help:"Only this reference, e.g. \"Gn 1:1\""`
}

func (c *CacheClearCmd) Run() error {
	a, err := app.NewApp(CLI.Config, false)
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.Cache.Invalidate(context.Background(), c.Ref)
	fmt.Printf("Removed %d cached analyses\n", n)
	return nil
}

// VersionCmd prints version information
type VersionCmd struct{}

func (v *VersionCmd) Run() error {
	common.LoadVersionFromFile()
	fmt.Println(common.GetFullVersion())
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("lectio"),
		kong.Description("Verse-by-verse Latin reader with word analysis, translations and audio"),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
