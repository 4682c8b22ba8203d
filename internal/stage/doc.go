// Package stage provides renderer stages that pace themselves on the
// graph's reference clock.
//
// WavRenderer probes a WAV file and, once running, asks the clock to signal
// it when the file's remaining duration has elapsed. TickRenderer renders a
// fixed number of periodic ticks. Both report Complete through the graph
// sink with their stage name in param2, so the graph counts each renderer
// once.
//
// Neither stage produces audio output; they model the timing and state
// behavior of a renderer, which is what the graph coordinates.
package stage
