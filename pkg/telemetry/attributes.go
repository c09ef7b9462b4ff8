package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Стандартные ключи атрибутов
const (
	// Сценарий
	AttrScenario       = "scenario.name"
	AttrNetworkNodes   = "scenario.nodes"
	AttrNetworkLinks   = "scenario.links"
	AttrTemplates      = "scenario.templates"
	AttrSources        = "scenario.sources"
	AttrFixedInstances = "scenario.fixed_instances"

	// Решение
	AttrObjective        = "solve.objective"
	AttrObjectiveValue   = "solve.objective_value"
	AttrChangedInstances = "solve.changed_instances"
	AttrInfeasible       = "solve.infeasible"
	AttrSeed             = "solve.seed"
	AttrCacheHit         = "solve.cache_hit"
)

// ScenarioAttributes возвращает атрибуты сценария
func ScenarioAttributes(name string, nodes, links, templates, sources, fixed int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrScenario, name),
		attribute.Int(AttrNetworkNodes, nodes),
		attribute.Int(AttrNetworkLinks, links),
		attribute.Int(AttrTemplates, templates),
		attribute.Int(AttrSources, sources),
		attribute.Int(AttrFixedInstances, fixed),
	}
}

// SolveAttributes возвращает атрибуты результата решения
func SolveAttributes(objective string, value float64, changed int, infeasible bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrObjective, objective),
		attribute.Float64(AttrObjectiveValue, value),
		attribute.Int(AttrChangedInstances, changed),
		attribute.Bool(AttrInfeasible, infeasible),
	}
}
