package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuanying/epubres/pkg/cover"
	"github.com/yuanying/epubres/pkg/epub"
)

var rootCmd = &cobra.Command{
	Use:   "epubres",
	Short: "Inspect EPUB publications and resolve their resource graph",
	Long: `epubres parses EPUB publications and resolves every internal
cross-reference into an addressable resource graph.

It can print package information, resolve individual resources with
their dependency lists, extract the rewritten publication to a
directory, and render cover thumbnails.`,
}

var infoCmd = &cobra.Command{
	Use:   "info <file>",
	Short: "Print package metadata, spine order, and manifest summary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := epub.Open(args[0])
		if err != nil {
			return err
		}
		defer c.Close()

		doc, err := c.PackageDocument()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Identifier:  %s\n", doc.Identifier)
		fmt.Fprintf(out, "Title:       %s\n", doc.Metadata.Title())
		fmt.Fprintf(out, "Language:    %s\n", doc.Metadata.Language())
		fmt.Fprintf(out, "Version:     %s\n", doc.Version)
		fmt.Fprintf(out, "Rendition:   layout=%s orientation=%s spread=%s flow=%s\n",
			doc.Rendition.Layout, doc.Rendition.Orientation, doc.Rendition.Spread, doc.Rendition.Flow)
		if doc.Metadata.Modified != nil {
			fmt.Fprintf(out, "Modified:    %s\n", doc.Metadata.Modified.Format("2006-01-02 15:04:05"))
		}
		if c.Encrypted() {
			fmt.Fprintln(out, "Encrypted:   yes (entries are not decrypted)")
		}

		fmt.Fprintf(out, "\nSpine (%s):\n", doc.Spine.PageProgression)
		for _, entry := range doc.Spine.Entries {
			item, _ := doc.Manifest.Item(entry.IDRef)
			marker := " "
			if !entry.Linear {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %s (%s)\n", marker, item.Path(), item.MediaType)
		}

		fmt.Fprintf(out, "\nManifest: %d items\n", len(doc.Manifest.Items))
		for _, w := range c.Warnings() {
			log.Printf("warning: %s", w)
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <file> <href>",
	Short: "Resolve one resource and print its type and dependencies",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := epub.Open(args[0])
		if err != nil {
			return err
		}
		defer c.Close()

		doc, err := c.PackageDocument()
		if err != nil {
			return err
		}

		res, err := doc.Resource(args[1])
		if err != nil {
			return fmt.Errorf("resolving %s: %w", args[1], err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Path:       %s\n", res.Path())
		fmt.Fprintf(out, "Type:       %s\n", res.Type())
		fmt.Fprintf(out, "Media type: %s\n", res.MediaType())

		if deps := resourceDependencies(res); len(deps) > 0 {
			fmt.Fprintln(out, "Dependencies:")
			for _, dep := range deps {
				fmt.Fprintf(out, "  %s (%s)\n", dep.Path(), dep.Type())
			}
		}

		if showContent, _ := cmd.Flags().GetBool("content"); showContent {
			switch r := res.(type) {
			case *epub.MarkupResource:
				html, err := r.Serialize()
				if err != nil {
					return err
				}
				fmt.Fprintln(out, html)
			case *epub.StylesheetResource:
				fmt.Fprintln(out, r.Text())
			default:
				return fmt.Errorf("printing %s content: %w", res.Type(), epub.ErrUnsupportedResource)
			}
		}
		return nil
	},
}

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Resolve every spine document and write the rewritten graph to a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outDir, _ := cmd.Flags().GetString("output")
		if outDir == "" {
			outDir = strings.TrimSuffix(args[0], filepath.Ext(args[0]))
		}

		c, err := epub.Open(args[0])
		if err != nil {
			return err
		}
		defer c.Close()

		doc, err := c.PackageDocument()
		if err != nil {
			return err
		}

		log.Printf("Extracting: %s -> %s", args[0], outDir)
		written := make(map[string]bool)

		for _, entry := range doc.Spine.Entries {
			item, _ := doc.Manifest.Item(entry.IDRef)
			res, err := doc.Resource(item.Href)
			if err != nil {
				log.Printf("warning: skipping %s: %v", item.Path(), err)
				continue
			}
			if res.Type() != epub.ResourceHTML {
				log.Printf("warning: skipping %s: %v", res.Path(), epub.ErrUnsupportedResource)
				continue
			}
			if err := writeResourceTree(res, outDir, written); err != nil {
				return err
			}
		}

		log.Printf("Done: %d resources", len(written))
		return nil
	},
}

var coverCmd = &cobra.Command{
	Use:   "cover <file>",
	Short: "Detect the cover image and write a thumbnail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outPath, _ := cmd.Flags().GetString("output")
		width, _ := cmd.Flags().GetInt("width")
		if outPath == "" {
			outPath = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + "-cover.jpg"
		}

		c, err := epub.Open(args[0])
		if err != nil {
			return err
		}
		defer c.Close()

		doc, err := c.PackageDocument()
		if err != nil {
			return err
		}

		info, err := cover.Detect(doc)
		if err != nil {
			return err
		}
		log.Printf("Cover: %s (%s, via %s)", info.Path, info.MediaType, info.DetectionMethod)

		data, err := info.ReadBytes(doc)
		if err != nil {
			return err
		}
		thumb, err := cover.Thumbnail(data, width)
		if err != nil {
			return err
		}
		if err := os.WriteFile(outPath, thumb, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}

		log.Printf("Done: %s", outPath)
		return nil
	},
}

// resourceDependencies returns the direct dependency list of a resource,
// empty for binaries.
func resourceDependencies(res epub.Resource) []epub.Resource {
	switch r := res.(type) {
	case *epub.MarkupResource:
		return r.Dependencies()
	case *epub.StylesheetResource:
		return r.Dependencies()
	default:
		return nil
	}
}

// writeResourceTree writes a resource's current content under dir at its
// container path, then recurses into its dependencies. Paths already
// written are skipped, so shared dependencies land exactly once.
func writeResourceTree(res epub.Resource, dir string, written map[string]bool) error {
	if written[res.Path()] {
		return nil
	}
	written[res.Path()] = true

	data, err := res.Blob()
	if err != nil {
		return fmt.Errorf("reading %s: %w", res.Path(), err)
	}

	target := filepath.Join(dir, filepath.FromSlash(res.Path()))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", target, err)
	}

	for _, dep := range resourceDependencies(res) {
		if err := writeResourceTree(dep, dir, written); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	resolveCmd.Flags().Bool("content", false, "Print the rewritten serialized content")
	extractCmd.Flags().StringP("output", "o", "", "Output directory (default: input without extension)")
	coverCmd.Flags().StringP("output", "o", "", "Output file path (default: input with -cover.jpg suffix)")
	coverCmd.Flags().Int("width", 0, "Thumbnail width in pixels (default 300)")

	rootCmd.AddCommand(infoCmd, resolveCmd, extractCmd, coverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, cover.ErrNoCover) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
