// Package scheduler plans and fires the day's posts.
//
// The package splits into three pieces: PlanSlots spreads a category's
// remaining quota across the rest of the posting window with random
// gaps; Table holds the resulting jobs (posts plus advance notices)
// until they come due; Service owns both and drives a single polling
// loop that dispatches due jobs, refreshes the opportunistic plan after
// each successful opportunistic post and re-plans the whole day at
// midnight.
//
// The engine never touches the network or the database directly. It
// reads spent quota through QuotaReader and hands each due post to a
// caller-supplied DispatchFunc, so the posting pipeline stays outside
// and the engine stays testable with a fake clock and a seeded random
// source.
package scheduler
