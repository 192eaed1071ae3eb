/*Package tfidf computes TF-IDF weights for every (term, document) pair of a
corpus in a single MapReduce pass.

The corpus holds one document per line: a document identifier followed by
whitespace separated tokens. Before the map phase, the driver counts the
documents. The map stage emits, keyed by CompositeKey, a count for every term
occurrence and one document frequency record per distinct term of a document.

Keys are partitioned by term and sorted by (term, marker), with the document
frequency marker ordered before every document. Reduce groups are formed by
term alone, so the reducer learns a term's document frequency before it sees
the term's documents, and computes

	weight = tf * log10(N / df)

for each of them. Output lines have the form "term\tdocID,weight".
*/
package tfidf
