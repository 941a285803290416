// Package pages models the document catalog and the page tree.
//
// A [PageTree] flattens the /Pages hierarchy into an ordered page list via
// depth-first traversal of /Kids. Traversal is guarded against malformed
// trees: revisiting a node or exceeding [MaxTreeDepth] aborts with a
// *core.CorruptError instead of looping.
//
// A [Page] is a view over dictionaries owned by the document's object cache;
// it holds no data of its own. Inheritable attributes (MediaBox, CropBox,
// Resources, Rotate) are resolved by walking the page's recorded ancestor
// chain. A document with no MediaBox anywhere yields [DefaultMediaBox]
// rather than an error.
package pages
