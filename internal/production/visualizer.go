package production

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/comalice/scxml/internal/primitives"
)

// DefaultVisualizer renders a parsed Document as Graphviz DOT or JSON.
type DefaultVisualizer struct{}

// ExportDOT generates Graphviz DOT source for doc, highlighting the
// states named in active.
func (v *DefaultVisualizer) ExportDOT(doc *primitives.Document, active []string) string {
	activeSet := make(map[string]bool, len(active))
	for _, id := range active {
		activeSet[id] = true
	}

	var buf bytes.Buffer
	buf.WriteString("digraph Statechart {\n")
	buf.WriteString("  rankdir=LR;\n")
	buf.WriteString("  node [shape=box, fontsize=10, style=rounded];\n")
	buf.WriteString("  edge [fontsize=9];\n")

	root := doc.MustState(doc.Root)
	for _, c := range root.Children {
		renderState(&buf, doc, doc.MustState(c), activeSet)
	}
	for _, s := range doc.States {
		for _, t := range s.Transitions {
			label := joinEvents(t.Events)
			for _, tgt := range t.Targets {
				fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", s.ID, doc.MustState(tgt).ID, label)
			}
		}
	}

	buf.WriteString("}\n")
	return buf.String()
}

func joinEvents(evs []primitives.EventDescriptor) string {
	if len(evs) == 0 {
		return "" // eventless
	}
	s := string(evs[0])
	for _, e := range evs[1:] {
		s += " " + string(e)
	}
	return s
}

func renderState(buf *bytes.Buffer, doc *primitives.Document, s *primitives.State, active map[string]bool) {
	if len(s.Children) > 0 {
		fmt.Fprintf(buf, "  subgraph cluster_%s {\n", s.ID)
		style := ""
		if active[s.ID] {
			style = " style=filled fillcolor=orange"
		} else if s.Kind == primitives.KindParallel {
			style = " style=filled fillcolor=lightblue"
		}
		fmt.Fprintf(buf, "    label=%q%s;\n", fmt.Sprintf("%s (%s)", s.ID, s.Kind), style)
		for _, c := range s.Children {
			renderState(buf, doc, doc.MustState(c), active)
		}
		buf.WriteString("  }\n")
		return
	}

	style := ""
	if active[s.ID] {
		style = " style=filled fillcolor=lightgreen"
	} else if s.Kind == primitives.KindFinal {
		style = " shape=doublecircle"
	}
	fmt.Fprintf(buf, "  %q [label=%q%s];\n", s.ID, s.ID, style)
}

// docView is the JSON-serializable shape ExportJSON emits: a flat list of
// states rather than the arena's index-linked tree, so it reads back
// without requiring the arena's internal numbering.
type docView struct {
	Name    string        `json:"name,omitempty"`
	Initial []string      `json:"initial"`
	States  []stateView   `json:"states"`
	Version string        `json:"version,omitempty"`
}

type stateView struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Parent   string   `json:"parent,omitempty"`
	Children []string `json:"children,omitempty"`
}

// ExportJSON serializes doc's state tree to JSON.
func (v *DefaultVisualizer) ExportJSON(doc *primitives.Document) ([]byte, error) {
	view := docView{Name: doc.Name, Version: doc.Version}
	for _, id := range doc.InitialIDs {
		view.Initial = append(view.Initial, id)
	}
	for _, s := range doc.States {
		if s.Index == doc.Root {
			continue
		}
		sv := stateView{ID: s.ID, Kind: s.Kind.String()}
		if s.Parent != doc.Root && s.Parent != primitives.NoState {
			sv.Parent = doc.MustState(s.Parent).ID
		}
		for _, c := range s.Children {
			sv.Children = append(sv.Children, doc.MustState(c).ID)
		}
		view.States = append(view.States, sv)
	}
	return json.MarshalIndent(view, "", "  ")
}
