// Package source turns Drupal exports into core records.
//
// Two inputs are supported: CSV files exported from Drupal (one file per
// importer, header row first) and a live Drupal 6 MySQL database queried with
// the importer's own SQL. Both yield records in source order through
// core.RecordReader.
package source
