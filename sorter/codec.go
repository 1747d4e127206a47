package sorter

import (
	"github.com/grailbio/biostream/encoding/bed"
	"github.com/grailbio/biostream/encoding/vcf"
	"github.com/grailbio/biostream/locus"
)

// BEDCodec sorts bed.Interval values by chromosome, start, and stop. Runs
// hold the BED text of each interval.
type BEDCodec struct{}

// Key implements Codec.
func (BEDCodec) Key(rec interface{}) locus.Key { return rec.(bed.Interval).Key() }

// Marshal implements Codec.
func (BEDCodec) Marshal(buf []byte, rec interface{}) []byte {
	return rec.(bed.Interval).AppendText(buf)
}

// Unmarshal implements Codec.
func (BEDCodec) Unmarshal(data []byte) (interface{}, error) {
	return bed.ParseLine(data)
}

// VCFCodec sorts *vcf.Record values by chromosome, position, and reference
// span. Runs hold the VCF text of each record.
type VCFCodec struct{}

// Key implements Codec.
func (VCFCodec) Key(rec interface{}) locus.Key { return rec.(*vcf.Record).Key() }

// Marshal implements Codec.
func (VCFCodec) Marshal(buf []byte, rec interface{}) []byte {
	return append(buf, rec.(*vcf.Record).String()...)
}

// Unmarshal implements Codec.
func (VCFCodec) Unmarshal(data []byte) (interface{}, error) {
	return vcf.ParseRecord(data)
}

// BEDSource adapts a bed.Reader to Source.
type BEDSource struct{ *bed.Reader }

// Record implements Source.
func (s BEDSource) Record() interface{} { return s.Reader.Record() }

// VCFSource adapts a vcf.Reader to Source.
type VCFSource struct{ *vcf.Reader }

// Record implements Source.
func (s VCFSource) Record() interface{} { return s.Reader.Record() }
