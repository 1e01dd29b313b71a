// Package vizon turns heterogeneous inputs into dashboards.
// Spreadsheets, photographs of tables and web pages all end up as one
// canonical table.
//
// Usage:
//
//	raw, err := extract.NewTabular(logger).Extract(ctx, extract.Input{Name: "sales.csv", Data: data})
//	table, err := schema.Normalize(raw)
//	dash, err := engine.BuildDashboard(table, engine.WithTopN(5))
//
// Extractors produce loosely typed rows (extract.RawRecordSet). The
// normalizer assigns names, types and explicit missing markers. The engine
// computes metrics and chart configs locally; only the extract vision/web
// adapters and the assistant package call the AI service.
package vizon
