// Package services contains the CLI's application services: the sales
// workspace facade, preferences, the online-status watcher, the lease
// keeper and the bus event reconciler.
package services
