package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"netembed/internal/heuristic"
	"netembed/internal/model"
	"netembed/internal/overlay"
)

// ScenarioHash computes a canonical hash over the complete solve input,
// including seed and objective. The engine is deterministic for identical
// inputs and seed, so the hash is a sound cache key for finished results.
func ScenarioHash(req *heuristic.Request, seed int64, objective string) string {
	data := canonicalRequest(req, seed, objective)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

// canonicalRequest renders the request into a deterministic byte string:
// every section is sorted before serialization.
func canonicalRequest(req *heuristic.Request, seed int64, objective string) []byte {
	var result []byte
	add := func(format string, args ...any) {
		result = append(result, []byte(fmt.Sprintf(format, args...))...)
	}

	add("seed:%d;obj:%s;", seed, objective)

	nodes := append([]string{}, req.Nodes.IDs...)
	sort.Strings(nodes)
	for _, v := range nodes {
		add("n:%s:%.6f:%.6f;", v, req.Nodes.CPU[v], req.Nodes.Mem[v])
	}

	links := append([]model.LinkID{}, req.Links.IDs...)
	sort.Slice(links, func(i, j int) bool {
		if links[i].Src != links[j].Src {
			return links[i].Src < links[j].Src
		}
		return links[i].Dst < links[j].Dst
	})
	for _, l := range links {
		add("l:%s:%s:%.6f:%.6f;", l.Src, l.Dst, req.Links.DR[l], req.Links.Delay[l])
	}

	templateNames := make([]string, 0, len(req.Templates))
	byName := map[string]int{}
	for idx, t := range req.Templates {
		templateNames = append(templateNames, t.Name)
		byName[t.Name] = idx
	}
	sort.Strings(templateNames)
	for _, name := range templateNames {
		t := req.Templates[byName[name]]
		add("t:%s;", t.Name)
		for _, j := range t.Components {
			add("c:%s:%s:%t:%d:%d:%d:%d:%v:%v:%v:%v:%.6f;",
				j.Name, j.Kind(), j.Stateful,
				j.Inputs, j.InputsBack, j.Outputs, j.OutputsBack,
				j.CPU, j.Mem, j.DR, j.DRBack, j.VNFDelay)
		}
		for _, a := range t.Arcs {
			add("a:%s:%s:%.6f;", a.Direction, a, a.MaxDelay)
		}
	}

	var sourceLines []string
	for _, src := range req.Sources {
		flows := append([]*overlay.Flow{}, src.Flows...)
		sort.Slice(flows, func(i, j int) bool { return flows[i].ID < flows[j].ID })
		line := fmt.Sprintf("s:%s:%s", src.Location, src.Component.Name)
		for _, f := range flows {
			line += fmt.Sprintf(":%s=%.6f", f.ID, f.SrcDR)
		}
		sourceLines = append(sourceLines, line+";")
	}
	sort.Strings(sourceLines)
	for _, line := range sourceLines {
		add("%s", line)
	}

	var fixedLines []string
	for _, fi := range req.Fixed {
		fixedLines = append(fixedLines, fmt.Sprintf("f:%s:%s;", fi.Location, fi.Component.Name))
	}
	sort.Strings(fixedLines)
	for _, line := range fixedLines {
		add("%s", line)
	}

	var prevLines []string
	for t, ol := range req.Previous {
		for _, i := range ol.Instances {
			prevLines = append(prevLines, fmt.Sprintf("p:%s:%s:%s;", t.Name, i.Component.Name, i.Location))
		}
	}
	sort.Strings(prevLines)
	for _, line := range prevLines {
		add("%s", line)
	}

	return result
}
