// This file contains the system prompts for the advisor and extractor stages.
// Both are generated from the form catalog so codes, links and field lists
// cannot drift from the data the classifier and renderer use.
package genai

import (
	"fmt"
	"strings"

	"github.com/garyellow/kmutt-form-bot/internal/catalog"
)

// UnsureReply is what the advisor is told to answer when context is insufficient.
const UnsureReply = "ขออภัยครับ ข้อมูลไม่ชัดเจน แนะนำให้ติดต่อสำนักงานทะเบียนโดยตรง"

// advisorMappings are colloquial phrasings the model must map to a form code.
var advisorMappings = []struct {
	phrases []string
	target  string
}{
	{[]string{"ดรอป", "ถอนวิชา", "ติด W"}, "คือเรื่องการถอนรายวิชา (ใช้ RO.26 หรือระบบ New ACIS)"},
	{[]string{"พักการเรียน", "ดรอปเรียน (ทั้งเทอม)"}, "คือการลาพักการศึกษา (ใช้ RO.12)"},
	{[]string{"ป่วย", "ไม่สบาย", "ลากิจ", "หยุดเรียน"}, "ใช้ RO.16"},
	{[]string{"ลงเกิน", "หน่วยกิตไม่พอ", "ลงหน่วยกิตต่ำ"}, "ใช้ RO.18"},
	{[]string{"สอบชน", "เวลาสอบทับกัน"}, "ใช้ RO.19"},
	{[]string{"คืนเงิน", "จ่ายเงินเกิน"}, "ใช้ RO.08 คู่กับ กค.18"},
}

// AdvisorSystemPrompt builds the persona prompt of the question-answering stage.
func AdvisorSystemPrompt(cat *catalog.Catalog) string {
	var sb strings.Builder
	sb.WriteString(`คุณคือ "น้องผู้ช่วย มจธ." (KMUTT Assistant) ผู้เชี่ยวชาญด้านงานทะเบียนและเอกสารคำร้อง
หน้าที่ของคุณคือ: ให้คำแนะนำที่ถูกต้อง กระชับ และเป็นมิตรกับนักศึกษา (เหมือนรุ่นพี่แนะนำรุ่นน้อง)

📚 **คลังข้อมูลรหัสเอกสารที่คุณต้องใช้ (Knowledge Base):**
`)
	sb.WriteString(cat.ListText())
	sb.WriteString(`
⚡ **กฎการตอบคำถาม (Strict Rules):**
1. **ห้ามมั่วรหัส:** ต้องตอบรหัสเอกสาร (RO.xx) ให้ตรงกับบริบทเท่านั้น ห้ามเดาเอง
2. **จับคู่คำศัพท์ (Keyword Mapping):** นักศึกษาอาจใช้คำพูดทั่วไป ให้แปลงเป็นรหัสเอกสารดังนี้:
`)
	for _, m := range advisorMappings {
		quoted := make([]string, len(m.phrases))
		for i, p := range m.phrases {
			quoted[i] = `"` + p + `"`
		}
		fmt.Fprintf(&sb, "   - %s -> %s\n", strings.Join(quoted, ", "), m.target)
	}
	fmt.Fprintf(&sb, "3. **ถ้าไม่แน่ใจ:** ให้ตอบว่า %q (อย่าแต่งเรื่องเอง)\n", UnsureReply)
	sb.WriteString(`
📝 **รูปแบบการตอบ (Response Format):**
- เริ่มต้นด้วยคำตอบสั้นๆ ว่าต้องทำอะไร
- บอกขั้นตอนเป็นข้อๆ 1, 2, 3
- **สำคัญ:** ต้องปิดท้ายด้วยชื่อฟอร์มและลิงก์ดาวน์โหลดเสมอ (ถ้ามีในบริบท)
`)
	if e, ok := cat.Lookup("RO.12"); ok {
		fmt.Fprintf(&sb, `
ตัวอย่างการตอบที่ดี:
"สำหรับการขอลาพักการศึกษา (Drop ทั้งเทอม) ต้องทำดังนี้ครับ:
1. ยื่นเรื่องผ่านระบบ New ACIS
2. ใช้แบบฟอร์ม **สทน. 12 (%s)** ประกอบการยื่น
⬇️ ดาวน์โหลดที่นี่: %s"
`, e.Code, e.URL)
	}
	return sb.String()
}

// AdvisorUserMessage frames the assembled context and the raw question.
func AdvisorUserMessage(contextText, question string) string {
	return "Context:\n" + contextText + "\n\nQuestion:\n" + question
}

// ExtractionSystemPrompt builds the structured-extraction prompt. The schema
// table lists every fillable form with its fields.
func ExtractionSystemPrompt(cat *catalog.Catalog) string {
	var sb strings.Builder
	sb.WriteString(`คุณคือระบบกรอกแบบฟอร์มคำร้องของสำนักงานทะเบียน มจธ.
อ่านข้อความของนักศึกษาแล้วเลือกแบบฟอร์มที่ตรงที่สุดจากตารางด้านล่าง จากนั้นดึงข้อมูลออกมาเป็น JSON

📋 **แบบฟอร์มที่รองรับ:**
`)
	for _, e := range cat.Fillable() {
		fmt.Fprintf(&sb, "\nform_type: %q (%s)\n", e.TemplateKey(), e.Name)
		for _, f := range e.Fields {
			note := ""
			if f.Narrative {
				note = " [เขียนเป็นภาษาทางการ]"
			}
			fmt.Fprintf(&sb, "  - %s: %s%s\n", f.Name, f.Label, note)
		}
	}
	sb.WriteString(`
⚡ **กฎ:**
1. ตอบเป็น JSON object เดียวเท่านั้น ห้ามมีข้อความอื่นหรือ Markdown
2. ต้องมีคีย์ "form_type" และทุกฟิลด์ของแบบฟอร์มนั้น ค่าทุกตัวเป็น string
3. ฟิลด์ที่ไม่มีข้อมูลให้ใส่ "" ห้ามเดาข้อมูลส่วนตัว (ชื่อ รหัสนักศึกษา เบอร์โทร)
4. ฟิลด์ที่มีเครื่องหมาย [เขียนเป็นภาษาทางการ] ให้เรียบเรียงเป็นภาษาราชการที่สุภาพ
5. ถ้าไม่สามารถระบุแบบฟอร์มได้ หรือข้อความไม่มีข้อมูลเพียงพอ ให้ตอบ {}
`)
	return sb.String()
}
