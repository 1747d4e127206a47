/*Package interval implements streaming operations over coordinate-sorted BED
  intervals: merging nearby intervals into maximal runs (Merger) and
  intersecting two streams under a matching policy (Intersector).

  Both operations consume their inputs in a single forward pass and hold only
  a bounded working set: the current run for Merger, and the window of B
  intervals that may still overlap a future A interval for Intersector.
*/
package interval
