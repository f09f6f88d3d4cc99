// Package segment partitions a colour image into spatially coherent,
// colour-homogeneous regions.
//
// A run grows regions from smooth seeds (or starts from a caller label map),
// repairs gaps by hole filling and edge expansion, merges adjacent regions
// with three strategies (small pairs, boundary drift, region drift), erodes
// weakly connected pixels and finally collects the segment records: pixel
// and boundary lists, bounding boxes, centroids, means, an interior point,
// the traced outside polygon, shape descriptors and the neighbour graph.
//
// Map values: 0 is unassigned, positive values are segment ids, negative
// values mark pixels of rejected seed regions and InvalidPixel marks
// invalid source samples.
package segment
