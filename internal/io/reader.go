// Package io implements the file-based collaborator contracts of the engine:
// YAML readers for networks, templates, sources, fixed instances and previous
// embeddings, and the result writer.
package io

import (
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"netembed/internal/model"
	"netembed/internal/overlay"
	"netembed/internal/template"
	"netembed/pkg/apperror"
)

// networkFile is the YAML schema of a substrate network.
type networkFile struct {
	Nodes []struct {
		ID  string  `yaml:"id"`
		CPU float64 `yaml:"cpu"`
		Mem float64 `yaml:"mem"`
	} `yaml:"nodes"`
	Links []struct {
		Src   string  `yaml:"src"`
		Dst   string  `yaml:"dst"`
		DR    float64 `yaml:"dr"`
		Delay float64 `yaml:"delay"`
	} `yaml:"links"`
}

// ReadNetwork loads a substrate network. Links without an explicit reverse
// direction are duplicated in reverse with the same attributes.
func ReadNetwork(path string) (*model.Nodes, *model.Links, error) {
	var doc networkFile
	if err := readYAML(path, &doc); err != nil {
		return nil, nil, err
	}
	if len(doc.Nodes) == 0 {
		return nil, nil, apperror.Newf(apperror.CodeEmptyNetwork, "network file %s has no nodes", path)
	}

	nodeIDs := make([]string, 0, len(doc.Nodes))
	cpu := make(map[string]float64, len(doc.Nodes))
	mem := make(map[string]float64, len(doc.Nodes))
	for _, n := range doc.Nodes {
		if _, ok := cpu[n.ID]; ok {
			return nil, nil, apperror.Newf(apperror.CodeInvalidScenario, "duplicate node id %s", n.ID)
		}
		nodeIDs = append(nodeIDs, n.ID)
		cpu[n.ID] = n.CPU
		mem[n.ID] = n.Mem
	}

	var linkIDs []model.LinkID
	dr := map[model.LinkID]float64{}
	delay := map[model.LinkID]float64{}
	add := func(id model.LinkID, linkDR, linkDelay float64) {
		if _, ok := dr[id]; ok {
			return
		}
		linkIDs = append(linkIDs, id)
		dr[id] = linkDR
		delay[id] = linkDelay
	}
	for _, l := range doc.Links {
		if _, ok := cpu[l.Src]; !ok {
			return nil, nil, apperror.Newf(apperror.CodeUnknownNode, "link references unknown node %s", l.Src)
		}
		if _, ok := cpu[l.Dst]; !ok {
			return nil, nil, apperror.Newf(apperror.CodeUnknownNode, "link references unknown node %s", l.Dst)
		}
		add(model.LinkID{Src: l.Src, Dst: l.Dst}, l.DR, l.Delay)
	}
	// duplicate reversed links for bidirectionality
	for _, l := range doc.Links {
		add(model.LinkID{Src: l.Dst, Dst: l.Src}, l.DR, l.Delay)
	}

	return model.NewNodes(nodeIDs, cpu, mem), model.NewLinks(linkIDs, dr, delay), nil
}

// templateFile is the YAML schema of a service template.
type templateFile struct {
	Name string `yaml:"name"`
	VNFs []struct {
		Name       string      `yaml:"name"`
		Type       string      `yaml:"type"`
		Stateful   bool        `yaml:"stateful"`
		InputsFwd  int         `yaml:"inputs_fwd"`
		InputsBwd  int         `yaml:"inputs_bwd"`
		OutputsFwd int         `yaml:"outputs_fwd"`
		OutputsBwd int         `yaml:"outputs_bwd"`
		CPU        []float64   `yaml:"cpu"`
		Mem        []float64   `yaml:"mem"`
		OutFwd     [][]float64 `yaml:"out_fwd"`
		OutBwd     [][]float64 `yaml:"out_bwd"`
		VNFDelay   float64     `yaml:"vnf_delay"`
		Image      string      `yaml:"image"`
	} `yaml:"vnfs"`
	VLinks []struct {
		Direction string  `yaml:"direction"`
		Src       string  `yaml:"src"`
		SrcOutput int     `yaml:"src_output"`
		Dest      string  `yaml:"dest"`
		DestInput int     `yaml:"dest_input"`
		MaxDelay  float64 `yaml:"max_delay"`
	} `yaml:"vlinks"`
}

// ReadTemplate loads one service template. Stateful components not used in
// both directions are demoted with a warning; one warning message per demoted
// component is returned so callers can surface them in the result.
func ReadTemplate(path string, log *slog.Logger) (*template.Template, []string, error) {
	var doc templateFile
	if err := readYAML(path, &doc); err != nil {
		return nil, nil, err
	}

	t := &template.Template{Name: doc.Name}
	for _, vnf := range doc.VNFs {
		j, err := template.NewComponent(vnf.Name, vnf.Type, vnf.Stateful,
			vnf.InputsFwd, vnf.InputsBwd, vnf.OutputsFwd, vnf.OutputsBwd,
			vnf.CPU, vnf.Mem, vnf.OutFwd, vnf.OutBwd)
		if err != nil {
			return nil, nil, err
		}
		j.VNFDelay = vnf.VNFDelay
		j.Image = vnf.Image
		t.Components = append(t.Components, j)
	}

	for _, vl := range doc.VLinks {
		src := t.Component(vl.Src)
		dest := t.Component(vl.Dest)
		if src == nil || dest == nil {
			return nil, nil, apperror.Newf(apperror.CodeUnknownComponent,
				"template %s: vlink %s->%s references unknown component", doc.Name, vl.Src, vl.Dest)
		}
		t.Arcs = append(t.Arcs, &template.Arc{
			Direction: template.Direction(vl.Direction),
			Source:    src,
			SrcOut:    vl.SrcOutput,
			Dest:      dest,
			DestIn:    vl.DestInput,
			MaxDelay:  vl.MaxDelay,
		})
	}

	if err := t.Validate(); err != nil {
		return nil, nil, err
	}
	demoted := t.DemoteUnusedStateful(log)

	var warnings []string
	for _, name := range demoted {
		warnings = append(warnings, "stateful component "+name+" of template "+t.Name+
			" is not used bidirectionally and was demoted to non-stateful")
	}
	return t, warnings, nil
}

// sourcesFile is the YAML schema of the traffic sources.
type sourcesFile struct {
	Sources []struct {
		Node  string `yaml:"node"`
		VNF   string `yaml:"vnf"`
		Flows []struct {
			ID       string  `yaml:"id"`
			DataRate float64 `yaml:"data_rate"`
		} `yaml:"flows"`
	} `yaml:"sources"`
}

// ReadSources loads the sources, resolving component names against the given
// templates. Duplicate (node, component) pairs are rejected.
func ReadSources(path string, templates []*template.Template) ([]*overlay.Source, error) {
	var doc sourcesFile
	if err := readYAML(path, &doc); err != nil {
		return nil, err
	}

	seen := map[[2]string]bool{}
	var sources []*overlay.Source
	for _, s := range doc.Sources {
		j := componentByName(templates, s.VNF)
		if j == nil {
			return nil, apperror.Newf(apperror.CodeUnknownComponent,
				"source references unknown component %s", s.VNF)
		}
		key := [2]string{s.Node, s.VNF}
		if seen[key] {
			return nil, apperror.Newf(apperror.CodeDuplicateSource,
				"duplicate source of %s at node %s", s.VNF, s.Node)
		}
		seen[key] = true

		flows := make([]*overlay.Flow, 0, len(s.Flows))
		for _, f := range s.Flows {
			flows = append(flows, overlay.NewFlow(f.ID, f.DataRate))
		}
		sources = append(sources, &overlay.Source{Location: s.Node, Component: j, Flows: flows})
	}
	return sources, nil
}

// fixedFile is the YAML schema of the fixed instances.
type fixedFile struct {
	FixedInstances []struct {
		Node string `yaml:"node"`
		VNF  string `yaml:"vnf"`
	} `yaml:"fixed_instances"`
}

// ReadFixed loads the fixed instances. Source components cannot be fixed.
func ReadFixed(path string, templates []*template.Template) ([]*overlay.FixedInstance, error) {
	var doc fixedFile
	if err := readYAML(path, &doc); err != nil {
		return nil, err
	}

	var fixed []*overlay.FixedInstance
	for _, fi := range doc.FixedInstances {
		j := componentByName(templates, fi.VNF)
		if j == nil {
			return nil, apperror.Newf(apperror.CodeUnknownComponent,
				"fixed instance references unknown component %s", fi.VNF)
		}
		if j.Source {
			return nil, apperror.Newf(apperror.CodeFixedSource,
				"source component %s cannot be fixed", fi.VNF)
		}
		fixed = append(fixed, &overlay.FixedInstance{Location: fi.Node, Component: j})
	}
	return fixed, nil
}

// previousFile is the YAML schema of a previous embedding used as warm start.
type previousFile struct {
	Embedding []struct {
		Template  string `yaml:"template"`
		Instances []struct {
			VNF  string `yaml:"vnf"`
			Node string `yaml:"node"`
		} `yaml:"instances"`
	} `yaml:"embedding"`
}

// ReadPreviousEmbedding loads a previous embedding as instance placements.
// Edges are not restored; the builder reroutes the inherited instances.
// Entries for unknown templates or components are skipped.
func ReadPreviousEmbedding(path string, templates []*template.Template) (map[*template.Template]*overlay.Overlay, error) {
	var doc previousFile
	if err := readYAML(path, &doc); err != nil {
		return nil, err
	}

	prev := map[*template.Template]*overlay.Overlay{}
	for _, entry := range doc.Embedding {
		var t *template.Template
		for _, candidate := range templates {
			if candidate.Name == entry.Template {
				t = candidate
				break
			}
		}
		if t == nil {
			continue
		}
		ol := overlay.New(t)
		for _, placed := range entry.Instances {
			j := t.Component(placed.VNF)
			if j == nil || ol.InstanceAt(j, placed.Node) != nil {
				continue
			}
			if j.Source {
				ol.AddInstance(overlay.NewSourceInstance(j, placed.Node, nil))
			} else {
				ol.AddInstance(overlay.NewInstance(j, placed.Node))
			}
		}
		prev[t] = ol
	}
	return prev, nil
}

func componentByName(templates []*template.Template, name string) *template.Component {
	for _, t := range templates {
		if j := t.Component(name); j != nil {
			return j
		}
	}
	return nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return apperror.Wrap(apperror.CodeInvalidScenario, "cannot read "+path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return apperror.Wrap(apperror.CodeInvalidScenario, "cannot parse "+path, err)
	}
	return nil
}
