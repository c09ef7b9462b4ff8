package io

import (
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"netembed/internal/heuristic"
	"netembed/internal/model"
	"netembed/internal/paths"
)

// ResultDocument is the YAML schema of a solve result. Its embedding section
// is compatible with the previous-embedding reader, so results can be fed
// back as warm starts.
type ResultDocument struct {
	Scenario  string    `yaml:"scenario"`
	Objective string    `yaml:"objective"`
	Seed      int64     `yaml:"seed"`
	CreatedAt time.Time `yaml:"created_at"`

	Metrics   ResultMetrics   `yaml:"metrics"`
	Embedding []ResultOverlay `yaml:"embedding"`
	Warnings  []string        `yaml:"warnings,omitempty"`
}

// ResultMetrics is the solution metrics block.
type ResultMetrics struct {
	InitTimeMs     float64 `yaml:"init_time_ms"`
	RuntimeMs      float64 `yaml:"runtime_ms"`
	ObjectiveValue float64 `yaml:"obj_value"`
	Infeasible     bool    `yaml:"infeasible"`

	Changed []string `yaml:"changed"`

	MaxCPUOver float64 `yaml:"max_cpu_over"`
	MaxMemOver float64 `yaml:"max_mem_over"`
	MaxDROver  float64 `yaml:"max_dr_over"`

	TotalDelay float64 `yaml:"total_delay"`
	TotalCPU   float64 `yaml:"total_consumed_cpu"`
	TotalMem   float64 `yaml:"total_consumed_mem"`
	TotalDR    float64 `yaml:"total_consumed_dr"`

	NodeConsumption []NodeConsumption `yaml:"node_consumption"`
	LinkConsumption []LinkConsumption `yaml:"link_consumption"`
}

// NodeConsumption reports the consumed resources of one node.
type NodeConsumption struct {
	Node string  `yaml:"node"`
	CPU  float64 `yaml:"cpu"`
	Mem  float64 `yaml:"mem"`
}

// LinkConsumption reports the consumed data rate of one link.
type LinkConsumption struct {
	Src string  `yaml:"src"`
	Dst string  `yaml:"dst"`
	DR  float64 `yaml:"dr"`
}

// ResultOverlay is the embedding of one template.
type ResultOverlay struct {
	Template  string           `yaml:"template"`
	Instances []ResultInstance `yaml:"instances"`
	Edges     []ResultEdge     `yaml:"edges,omitempty"`
}

// ResultInstance is one placed instance.
type ResultInstance struct {
	VNF   string `yaml:"vnf"`
	Node  string `yaml:"node"`
	Fixed bool   `yaml:"fixed,omitempty"`
}

// ResultEdge is one routed edge with its flows.
type ResultEdge struct {
	Arc       string       `yaml:"arc"`
	Direction string       `yaml:"direction"`
	SrcVNF    string       `yaml:"src_vnf"`
	SrcNode   string       `yaml:"src_node"`
	DstVNF    string       `yaml:"dst_vnf"`
	DstNode   string       `yaml:"dst_node"`
	Path      []string     `yaml:"path"`
	Delay     float64      `yaml:"delay"`
	Flows     []ResultFlow `yaml:"flows"`
}

// ResultFlow is one flow mapped onto an edge with its data rate there.
type ResultFlow struct {
	ID string  `yaml:"id"`
	DR float64 `yaml:"dr"`
}

// BuildResult assembles the result document from a solve outcome.
func BuildResult(scenario, objective string, seed int64, links *model.Links, res *heuristic.Result) *ResultDocument {
	doc := &ResultDocument{
		Scenario:  scenario,
		Objective: objective,
		Seed:      seed,
		CreatedAt: time.Now().UTC(),
		Warnings:  res.Warnings,
		Metrics: ResultMetrics{
			InitTimeMs:     float64(res.InitTime.Microseconds()) / 1000,
			RuntimeMs:      float64(res.Runtime.Microseconds()) / 1000,
			ObjectiveValue: res.Evaluation.Value,
			Infeasible:     res.Evaluation.Infeasible,
			MaxCPUOver:     res.Evaluation.MaxCPUOver,
			MaxMemOver:     res.Evaluation.MaxMemOver,
			MaxDROver:      res.Evaluation.MaxDROver,
			TotalDelay:     res.Evaluation.TotalDelay,
			TotalCPU:       res.Evaluation.TotalCPU,
			TotalMem:       res.Evaluation.TotalMem,
			TotalDR:        res.Evaluation.TotalDR,
		},
	}

	for _, key := range res.Changed {
		doc.Metrics.Changed = append(doc.Metrics.Changed, key.String())
	}

	// consumption maps, sorted for stable output
	nodes := make([]string, 0, len(res.Evaluation.ConsumedCPU))
	for v := range res.Evaluation.ConsumedCPU {
		nodes = append(nodes, v)
	}
	sort.Strings(nodes)
	for _, v := range nodes {
		if res.Evaluation.ConsumedCPU[v] == 0 && res.Evaluation.ConsumedMem[v] == 0 {
			continue
		}
		doc.Metrics.NodeConsumption = append(doc.Metrics.NodeConsumption, NodeConsumption{
			Node: v,
			CPU:  res.Evaluation.ConsumedCPU[v],
			Mem:  res.Evaluation.ConsumedMem[v],
		})
	}
	usedLinks := make([]model.LinkID, 0, len(res.Evaluation.ConsumedDR))
	for l := range res.Evaluation.ConsumedDR {
		usedLinks = append(usedLinks, l)
	}
	sort.Slice(usedLinks, func(i, j int) bool {
		if usedLinks[i].Src != usedLinks[j].Src {
			return usedLinks[i].Src < usedLinks[j].Src
		}
		return usedLinks[i].Dst < usedLinks[j].Dst
	})
	for _, l := range usedLinks {
		if res.Evaluation.ConsumedDR[l] == 0 {
			continue
		}
		doc.Metrics.LinkConsumption = append(doc.Metrics.LinkConsumption, LinkConsumption{
			Src: l.Src,
			Dst: l.Dst,
			DR:  res.Evaluation.ConsumedDR[l],
		})
	}

	// overlays sorted by template name for stable output
	type namedOverlay struct {
		name string
		ro   ResultOverlay
	}
	var overlays []namedOverlay
	for t, ol := range res.Overlays {
		ro := ResultOverlay{Template: t.Name}
		for _, i := range ol.Instances {
			ro.Instances = append(ro.Instances, ResultInstance{
				VNF:   i.Component.Name,
				Node:  i.Location,
				Fixed: i.Fixed,
			})
		}
		for _, e := range ol.Edges {
			re := ResultEdge{
				Arc:       e.Arc.String(),
				Direction: string(e.Direction),
				SrcVNF:    e.Source.Component.Name,
				SrcNode:   e.Source.Location,
				DstVNF:    e.Dest.Component.Name,
				DstNode:   e.Dest.Location,
			}
			if len(e.Paths) > 0 {
				re.Path = e.Paths[0]
				re.Delay = paths.Delay(links, e.Paths[0])
			}
			for _, f := range e.Flows {
				re.Flows = append(re.Flows, ResultFlow{ID: f.ID, DR: f.DR[e]})
			}
			ro.Edges = append(ro.Edges, re)
		}
		overlays = append(overlays, namedOverlay{name: t.Name, ro: ro})
	}
	sort.Slice(overlays, func(i, j int) bool { return overlays[i].name < overlays[j].name })
	for _, entry := range overlays {
		doc.Embedding = append(doc.Embedding, entry.ro)
	}

	return doc
}

// MarshalResult renders the document as YAML.
func MarshalResult(doc *ResultDocument) ([]byte, error) {
	return yaml.Marshal(doc)
}

// WriteResult writes the document to a file.
func WriteResult(doc *ResultDocument, path string) error {
	data, err := MarshalResult(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
