// Package compose turns the exports of a decoded component into imports of a
// component's aggregate dependency descriptor.
//
// The flow for one added component is:
//
//	candidates, err := compose.ExportedInterfaces(g, world)
//	sel := compose.SelectAll(candidates[0])
//	if err := sel.Validate(candidates); err != nil { ... }
//
//	desc, err := compose.LoadDescriptor(compose.DescriptorPath(appDir, "my-component"))
//	err = desc.Add(g, world, sel)
//	err = desc.Persist()
//
// Descriptor.Add importizes the exports per selected package, merges the
// resulting graph into the descriptor graph and unions the import-only world
// into the "deps" world. Merging is all or nothing: on CompositionConflict
// the descriptor graph is left unchanged.
package compose
