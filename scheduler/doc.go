// Package scheduler runs channel syncs on a fixed interval. Each tick
// dispatches one sync job per configured channel onto a worker pool;
// overlapping runs of the same channel are refused by the pipeline's
// per-channel lock, so a slow channel never stacks up work.
package scheduler
