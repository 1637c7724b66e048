// Package ingestion builds the catalog table from a raw product CSV.
//
// A Pipeline run moves rows through these stages:
//   - Load the CSV from the object store or a local path
//   - Clean: project columns, drop incomplete and duplicate rows, parse
//     specifications, lemmatize descriptions, split the category tree
//   - Copy product images into the object store
//   - Embed each row three ways (text, image, multimodal) on a bounded pool
//   - Replace the catalog table and its ANN indexes in one step
//
// Rows that fail a stage are dropped and reported in the Result. The run
// fails only when nothing survives or the final load fails.
package ingestion
