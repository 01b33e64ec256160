/*
Package markov provides an in-memory, file-backed toolkit for creating,
training, and using order-N Markov chain models in Go.

A Chain maps every context (the previous order-1 tokens) to the observed
frequency of each token that followed it. Chains are trained from text split
by a Tokenizer, persisted per order by a Store, and sampled by Generate using
an injected source of randomness so that a fixed seed reproduces a fixed
output.

The Model type ties these together behind a single configuration of
{order, directory, extension}.
*/
package markov
