package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anotherme/anotherme/internal/api"
	"github.com/anotherme/anotherme/internal/config"
)

// docsCommand manages the knowledge base.
func docsCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"knowledge"},
		Short:   "Manage knowledge base documents",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				var results []*api.UploadResponse
				for _, path := range args {
					resp, err := uploadFile(cmd, a.client, path)
					if err != nil {
						return err
					}
					results = append(results, resp)
					if !a.jsonOutput() {
						fmt.Fprintf(out, "uploaded %s -> %s\n", resp.Filename, resp.DocumentID)
					}
				}
				if a.jsonOutput() {
					return writeJSON(out, results)
				}
				return nil
			})
		},
	})

	var topK int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				resp, err := a.client.SearchKnowledge(cmd.Context(), strings.Join(args, " "), topK)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, resp)
				}
				fmt.Fprintf(out, "%d result(s) for %q\n", resp.Total, resp.Query)
				for i, result := range resp.Results {
					fmt.Fprintf(out, "%d. [%.2f] %s\n", i+1, result.Score, truncateForDisplay(compactWhitespace(result.Content), 160))
				}
				return nil
			})
		},
	}
	search.Flags().IntVar(&topK, "top-k", 5, "Number of results")
	cmd.AddCommand(search)

	var page, pageSize int
	list := &cobra.Command{
		Use:   "list",
		Short: "List documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				resp, err := a.client.Documents(cmd.Context(), page, pageSize)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, resp)
				}
				for _, doc := range resp.Data {
					fmt.Fprintf(out, "%s  %-32s %10s  %s\n", doc.ID, doc.Filename, formatBytes(doc.Size), doc.UploadTime)
				}
				fmt.Fprintf(out, "page %d/%d, %d document(s)\n", resp.Pagination.Page, resp.Pagination.TotalPages, resp.Pagination.Total)
				return nil
			})
		},
	}
	list.Flags().IntVar(&page, "page", 1, "Page number")
	list.Flags().IntVar(&pageSize, "page-size", 20, "Documents per page")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				doc, err := a.client.Document(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, doc)
				}
				fmt.Fprintf(out, "%s (%s, %s)\n", doc.Filename, doc.DocType, formatBytes(doc.Size))
				if len(doc.Tags) > 0 {
					fmt.Fprintf(out, "tags: %s\n", strings.Join(doc.Tags, ", "))
				}
				fmt.Fprintf(out, "\n%s\n", doc.Content)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				var (
					resp *api.BaseResponse
					err  error
				)
				if len(args) == 1 {
					resp, err = a.client.DeleteDocument(cmd.Context(), args[0])
				} else {
					resp, err = a.client.DeleteDocuments(cmd.Context(), args)
				}
				if err != nil {
					return err
				}
				return printAck(a, out, resp, fmt.Sprintf("deleted %d document(s)", len(args)))
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show knowledge base totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				stats, err := a.client.KnowledgeStats(cmd.Context())
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, stats)
				}
				fmt.Fprintf(out, "documents: %d\nchunks: %d\nsize: %s\n", stats.DocumentCount, stats.TotalChunks, formatBytes(stats.TotalSize))
				return nil
			})
		},
	})
	return cmd
}

// uploadFile streams one local file to the knowledge base.
func uploadFile(cmd *cobra.Command, client *api.Client, path string) (*api.UploadResponse, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	return client.UploadDocument(cmd.Context(), path, file)
}

// memoriesCommand manages remembered conversation fragments.
func memoriesCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "memories",
		Aliases: []string{"mem"},
		Short:   "Browse and manage memories",
	}

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				resp, err := a.client.Memories(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				return printMemories(a, out, resp)
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 100, "Maximum memories to list")
	list.Flags().IntVar(&offset, "offset", 0, "Skip this many memories")
	cmd.AddCommand(list)

	var searchLimit int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				resp, err := a.client.SearchMemories(cmd.Context(), strings.Join(args, " "), searchLimit)
				if err != nil {
					return err
				}
				return printMemories(a, out, resp)
			})
		},
	}
	search.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results")
	cmd.AddCommand(search)

	var from, to string
	recall := &cobra.Command{
		Use:   "recall <query>",
		Short: "Recall memories as a narrative",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				req := api.RecallRequest{Query: strings.Join(args, " ")}
				if from != "" || to != "" {
					req.TimeRange = &api.TimeRange{Start: from, End: to}
				}
				resp, err := a.client.Recall(cmd.Context(), req)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, resp)
				}
				fmt.Fprintln(out, resp.Presentation)
				for _, node := range resp.Timeline {
					fmt.Fprintf(out, "\n%s\n", node.Date)
					for _, event := range node.Events {
						fmt.Fprintf(out, "  - %s\n", truncateForDisplay(compactWhitespace(event.Content), 120))
					}
				}
				return nil
			})
		},
	}
	recall.Flags().StringVar(&from, "from", "", "Start of the time range")
	recall.Flags().StringVar(&to, "to", "", "End of the time range")
	cmd.AddCommand(recall)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				var (
					resp *api.BaseResponse
					err  error
				)
				if len(args) == 1 {
					resp, err = a.client.DeleteMemory(cmd.Context(), args[0])
				} else {
					resp, err = a.client.DeleteMemories(cmd.Context(), args)
				}
				if err != nil {
					return err
				}
				return printAck(a, out, resp, fmt.Sprintf("deleted %d memor(ies)", len(args)))
			})
		},
	})

	var format, outputPath string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export all memories as json or csv",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "csv" {
				return fmt.Errorf("unsupported export format: %s", format)
			}
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				raw, err := a.client.ExportMemories(cmd.Context(), format)
				if err != nil {
					return err
				}
				if outputPath == "" || outputPath == "-" {
					_, err = out.Write(raw)
					return err
				}
				if err := os.WriteFile(outputPath, raw, 0o600); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%s)\n", outputPath, formatBytes(int64(len(raw))))
				return nil
			})
		},
	}
	export.Flags().StringVar(&format, "format", "json", "Export format (json|csv)")
	export.Flags().StringVarP(&outputPath, "output", "o", "", "Write to a file instead of stdout")
	cmd.AddCommand(export)

	var learnContext string
	learn := &cobra.Command{
		Use:   "learn <message>",
		Short: "Teach a message to your memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				resp, err := a.client.Learn(cmd.Context(), strings.Join(args, " "), learnContext)
				if err != nil {
					return err
				}
				return printAck(a, out, resp, "learned")
			})
		},
	}
	learn.Flags().StringVar(&learnContext, "context", "", "Extra context for the message")
	cmd.AddCommand(learn)
	return cmd
}

func printMemories(a *app, out io.Writer, resp *api.MemoryListResponse) error {
	if a.jsonOutput() {
		return writeJSON(out, resp)
	}
	for _, memory := range resp.Memories {
		extra := ""
		if memory.Emotion != "" {
			extra = " [" + memory.Emotion + "]"
		}
		fmt.Fprintf(out, "%s  %s%s  %s\n", memory.ID, memory.Timestamp, extra, truncateForDisplay(compactWhitespace(memory.Content), 100))
	}
	fmt.Fprintf(out, "%d of %d memories\n", len(resp.Memories), resp.Total)
	return nil
}

// printAck reports a generic acknowledgement.
func printAck(a *app, out io.Writer, resp *api.BaseResponse, fallback string) error {
	if a.jsonOutput() {
		return writeJSON(out, resp)
	}
	message := resp.Message
	if message == "" {
		message = fallback
	}
	fmt.Fprintln(out, message)
	return nil
}

// graphCommand explores the knowledge graph.
func graphCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Explore the knowledge graph",
	}

	var depth int
	entity := &cobra.Command{
		Use:   "entity <name>",
		Short: "Show the neighbourhood of an entity",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				resp, err := a.client.EntityGraph(cmd.Context(), strings.Join(args, " "), depth)
				if err != nil {
					return err
				}
				return printGraph(a, out, resp, resp.Data)
			})
		},
	}
	entity.Flags().IntVar(&depth, "depth", 2, "Traversal depth")
	cmd.AddCommand(entity)

	var maxHops int
	document := &cobra.Command{
		Use:   "document <doc-id>",
		Short: "Show documents related to a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				resp, err := a.client.DocumentGraph(cmd.Context(), args[0], maxHops)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, resp)
				}
				fmt.Fprint(out, renderGraph(resp.Data))
				for _, related := range resp.RelatedDocs {
					fmt.Fprintf(out, "related %s (distance %d, score %.2f) via %s\n",
						related.DocID, related.Distance, related.Score, strings.Join(related.SharedEntities, ", "))
				}
				return nil
			})
		},
	}
	document.Flags().IntVar(&maxHops, "max-hops", 2, "Maximum hops between documents")
	cmd.AddCommand(document)

	var overviewLimit int
	overview := &cobra.Command{
		Use:   "overview",
		Short: "Show an overview of the graph",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				resp, err := a.client.GraphOverview(cmd.Context(), overviewLimit)
				if err != nil {
					return err
				}
				return printGraph(a, out, resp, resp.Data)
			})
		},
	}
	overview.Flags().IntVar(&overviewLimit, "limit", 100, "Maximum nodes")
	cmd.AddCommand(overview)

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Count nodes and edges by type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				stats, err := a.client.GraphStats(cmd.Context())
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, stats)
				}
				fmt.Fprintf(out, "nodes: %d\nedges: %d\n", stats.TotalNodes, stats.TotalEdges)
				for _, name := range sortedKeys(stats.NodeTypes) {
					fmt.Fprintf(out, "  node %s: %d\n", name, stats.NodeTypes[name])
				}
				for _, name := range sortedKeys(stats.EdgeTypes) {
					fmt.Fprintf(out, "  edge %s: %d\n", name, stats.EdgeTypes[name])
				}
				return nil
			})
		},
	})

	var entityType string
	var searchLimit int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Search entities by name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				resp, err := a.client.SearchEntities(cmd.Context(), strings.Join(args, " "), entityType, searchLimit)
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, resp)
				}
				for _, node := range resp.Entities {
					fmt.Fprintf(out, "%s  %s  %s\n", node.ID, node.DisplayName(), node.Type)
				}
				return nil
			})
		},
	}
	search.Flags().StringVar(&entityType, "type", "", "Entity type filter")
	search.Flags().IntVar(&searchLimit, "limit", 20, "Maximum results")
	cmd.AddCommand(search)

	var params string
	cypher := &cobra.Command{
		Use:   "cypher <query>",
		Short: "Run a raw graph query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var parameters map[string]any
			if params != "" {
				if err := json.Unmarshal([]byte(params), &parameters); err != nil {
					return fmt.Errorf("parse --params: %w", err)
				}
			}
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				raw, err := a.client.Cypher(cmd.Context(), strings.Join(args, " "), parameters)
				if err != nil {
					return err
				}
				var decoded any
				if err := json.Unmarshal(raw, &decoded); err != nil {
					_, err = out.Write(raw)
					return err
				}
				return writeJSON(out, decoded)
			})
		},
	}
	cypher.Flags().StringVar(&params, "params", "", "Query parameters as a JSON object")
	cmd.AddCommand(cypher)

	var ragDepth int
	rag := &cobra.Command{
		Use:   "rag <work|life|mem>",
		Short: "Show the scene graph built from your documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := strings.ToLower(args[0])
			switch kind {
			case "work", "life", "mem":
			default:
				return fmt.Errorf("graph type must be work, life or mem, got %q", args[0])
			}
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				data, err := a.client.RAGGraph(cmd.Context(), kind, ragDepth)
				if err != nil {
					return err
				}
				return printGraph(a, out, data, *data)
			})
		},
	}
	rag.Flags().IntVar(&ragDepth, "depth", 2, "Traversal depth")
	cmd.AddCommand(rag)
	return cmd
}

func printGraph(a *app, out io.Writer, payload any, data api.GraphData) error {
	if a.jsonOutput() {
		return writeJSON(out, payload)
	}
	fmt.Fprint(out, renderGraph(data))
	return nil
}

// renderGraph lists edges as "source -relation-> target" using node names.
func renderGraph(data api.GraphData) string {
	names := make(map[string]string, len(data.Nodes))
	for _, node := range data.Nodes {
		names[node.ID] = node.DisplayName()
	}
	nameOf := func(id string) string {
		if name, ok := names[id]; ok {
			return name
		}
		return id
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "%d node(s), %d edge(s)\n", len(data.Nodes), len(data.Edges))
	for _, edge := range data.Edges {
		relation := edge.Relation
		if relation == "" {
			relation = edge.Type
		}
		fmt.Fprintf(&builder, "  %s -%s-> %s\n", nameOf(edge.Source), relation, nameOf(edge.Target))
	}
	return builder.String()
}

// healthCommand checks that the backend is reachable.
func healthCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, false, func(a *app, out io.Writer) error {
				health, err := a.client.Health(cmd.Context())
				if err != nil {
					return err
				}
				if a.jsonOutput() {
					return writeJSON(out, health)
				}
				fmt.Fprintf(out, "%s %s (version %s)\n", a.client.BaseURL(), health.Status, health.Version)
				return nil
			})
		},
	}
}

// doctorCommand validates local configuration and backend reachability.
func doctorCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check Another Me configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := mustProviderPath()
			perm, exists, err := providerConfigMode(path)
			switch {
			case err != nil:
				return err
			case !exists:
				fmt.Fprintf(out, "OK: no provider config at %s, using %s\n", path, config.DefaultAPIBaseURL)
			case perm&0o077 != 0:
				return fmt.Errorf("provider config permissions too open: %s (run chmod 600 %s)", perm, path)
			default:
				fmt.Fprintf(out, "OK: provider config %s\n", path)
			}

			return withApp(cmd, opts, true, func(a *app, out io.Writer) error {
				keys, err := a.state.Keys()
				if err != nil {
					return fmt.Errorf("state database: %w", err)
				}
				fmt.Fprintf(out, "OK: state database (%d key(s)), mode %s\n", len(keys), describeState(a.selector))
				health, err := a.client.Health(cmd.Context())
				if err != nil {
					return fmt.Errorf("backend %s: %s", a.client.BaseURL(), formatError(err))
				}
				fmt.Fprintf(out, "OK: backend %s %s\n", a.client.BaseURL(), health.Status)
				return nil
			})
		},
	}
}
