// Package threatgraph builds a threat-intelligence knowledge graph from a
// chunked report archive.
//
// Open wires a Runtime from a config.Config: the chunk archive is
// reconstructed into documents, each document runs through entity
// extraction, MITRE ATT&CK enrichment and relationship extraction, and the
// results are merged into a graph store. Progress is checkpointed per
// document so an interrupted run resumes where it stopped.
//
//	rt, err := threatgraph.Open(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer rt.Close()
//	summary, err := rt.Run(ctx)
package threatgraph
