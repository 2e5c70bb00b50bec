// Package signal implements per-process signal state and delivery.
//
// Kill and Stop can be neither masked nor caught. Delivery handles Kill
// first, then Stop, then the remaining unmasked signals in arrival order.
// Repeated sends of one kind coalesce into a single pending instance, except
// Kill which is counted. Masked signals stay pending until unmasked.
package signal
