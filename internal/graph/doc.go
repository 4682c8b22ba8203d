// Package graph coordinates the stages of a media pipeline.
//
// A Graph owns an ordered list of stages and drives them together through
// Stopped, Paused and Running. It also owns the graph's event queue: stages
// report through the Sink handed to them on join, and the application reads
// the resulting records with GetEvent.
//
// Completion:
// Stages added with AsRenderer are counted. Each renderer reports Complete
// once its stream has ended; the Aggregator swallows those reports and,
// when the last renderer has reported, queues exactly one graph-level
// Complete and releases WaitForCompletion. Leaving Running resets the count
// so a later Run can complete again.
//
// Locking:
// Controller, Aggregator and Queue each guard their own state. No lock is
// held while a stage method runs, so stages may call back into the graph
// (Notify, GetState) from inside Stop, Pause or Run.
package graph
