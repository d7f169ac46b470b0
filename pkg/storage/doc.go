// Package storage provides the output sinks of a harvesting run.
//
// Every sink appends and flushes per item, so a file is valid up to the
// last complete line even if the process is killed:
//   - RecordWriter writes one JSON record per line with sorted keys
//   - IDWriter writes one identifier per line
//   - TabularWriter writes '|' separated rows under a fixed header
//   - PostgresSink upserts records into a jsonb table
//
// Files are opened with an OpenMode. Truncate starts fresh, Append continues
// a previous run; ScanResolved reads such a run back so it can be resumed.
//
// Usage:
//
//	records, err := storage.NewRecordWriter("ids_full.json", storage.Truncate, false)
//	if err != nil {
//	    return err
//	}
//	defer records.Close()
//
//	err = records.WriteRecord(ctx, rec)
package storage
