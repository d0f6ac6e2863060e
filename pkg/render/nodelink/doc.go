// Package nodelink renders re-export graphs as node-link diagrams.
//
// # Usage
//
// Convert a graph to DOT, then render it to SVG:
//
//	g, err := st.ReexportGraph(ctx, "tokio-1.38.0", limits)
//	dot := nodelink.ToDOT(g, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// The DOT source uses a top-to-bottom layout with rounded boxes; the root
// package is drawn bold. With [Options].Counts set, labels carry the number
// of declarations of each package.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering.
package nodelink
