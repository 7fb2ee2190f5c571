// Package probe is grounded on the teacher's bpfloader.Loader.Attach,
// which hand-unrolls exactly this table as a sequence of link.* calls;
// here the table is data (see BuiltinTable), and the loader walks it.
package probe
