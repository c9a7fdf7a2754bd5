// Package journal keeps an append-only SQLite record of the match feed.
//
// The journal subscribes to the publisher for event and diagnostic
// notifications and writes them in batches. Every accepted statement is
// stored with its raw wire text, tag, event kind, arrival time and JSON
// payload; diagnostics keep their error kind and offending text. Rows are
// grouped by run, one per feed start.
//
// Replay decodes a run's raw statements again and folds them through the
// reducer, reproducing the state the live feed held at the end of that run:
//
//	res, err := journal.Replay(ctx, "vta-journal.db", "")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.State.Scores)
package journal
